package stats

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput is returned when a group carries counts that violate the
// caller contract (negative values, or conversions exceeding visitors).
var ErrInvalidInput = errors.New("invalid input")

// DefaultMinSampleSize is the combined-visitor floor below which a test is
// never reported significant. The z-test assumes asymptotic normality, which
// breaks down on tiny samples. Set to 0 to disable the floor.
const DefaultMinSampleSize = 30

// SignificanceThreshold is the p-value below which a difference counts as
// statistically significant (95% confidence).
const SignificanceThreshold = 0.05

// Group describes one arm of an experiment for a pairwise comparison.
type Group struct {
	Name        string
	Visitors    int
	Conversions int
}

// Rate returns the observed conversion rate, 0 when there are no visitors.
func (g Group) Rate() float64 {
	if g.Visitors == 0 {
		return 0
	}
	return float64(g.Conversions) / float64(g.Visitors)
}

func (g Group) validate() error {
	if g.Visitors < 0 || g.Conversions < 0 {
		return fmt.Errorf("%w: negative counts for group %q", ErrInvalidInput, g.Name)
	}
	if g.Conversions > g.Visitors {
		return fmt.Errorf("%w: conversions exceed visitors for group %q", ErrInvalidInput, g.Name)
	}
	return nil
}

// TestResult is the outcome of a two-proportion z-test between a control and
// a treatment group.
type TestResult struct {
	ControlName   string  `json:"control_name"`
	TreatmentName string  `json:"treatment_name"`
	ControlRate   float64 `json:"control_rate"`
	TreatmentRate float64 `json:"treatment_rate"`
	ZScore        float64 `json:"z_score"`
	PValue        float64 `json:"p_value"`
	Significant   bool    `json:"is_significant"`
	Winner        *string `json:"winner"`
	Confidence    string  `json:"confidence"`
	Summary       string  `json:"summary"`
}

const (
	confidenceNone = "not significant"

	summaryInconclusive = "Not enough data to determine a statistically significant difference."
)

// Compare runs a two-proportion z-test of treatment against control.
// minSample is the combined-visitor floor; pass DefaultMinSampleSize unless
// configured otherwise. The function is total over valid inputs: it always
// returns a well-formed result and only errors on contract violations.
func Compare(control, treatment Group, minSample int) (*TestResult, error) {
	if err := control.validate(); err != nil {
		return nil, err
	}
	if err := treatment.validate(); err != nil {
		return nil, err
	}

	result := &TestResult{
		ControlName:   control.Name,
		TreatmentName: treatment.Name,
		ControlRate:   control.Rate(),
		TreatmentRate: treatment.Rate(),
		PValue:        1,
		Confidence:    confidenceNone,
		Summary:       summaryInconclusive,
	}

	// A rate cannot be computed for an empty group; the test is undefined.
	if control.Visitors == 0 || treatment.Visitors == 0 {
		return result, nil
	}

	pooled := float64(control.Conversions+treatment.Conversions) /
		float64(control.Visitors+treatment.Visitors)
	se := math.Sqrt(pooled * (1 - pooled) *
		(1/float64(control.Visitors) + 1/float64(treatment.Visitors)))

	// Degenerate pooled rate (0 or 1): no variance, the test is undefined.
	if se == 0 {
		return result, nil
	}

	result.ZScore = (result.TreatmentRate - result.ControlRate) / se
	result.PValue = clamp01(2 * (1 - normalCDF(math.Abs(result.ZScore))))

	if control.Visitors+treatment.Visitors < minSample {
		// Below the sample floor the normal approximation is not trusted,
		// regardless of how extreme the raw z-score looks.
		return result, nil
	}

	result.Significant = result.PValue < SignificanceThreshold
	result.Confidence = confidenceLabel(result.PValue)

	if result.Significant {
		winner, loser := treatment.Name, control.Name
		if result.ControlRate > result.TreatmentRate {
			winner, loser = control.Name, treatment.Name
		}
		result.Winner = &winner
		result.Summary = fmt.Sprintf("%s outperforms %s with %s confidence",
			winner, loser, result.Confidence)
	}

	return result, nil
}

// confidenceLabel maps a two-tailed p-value to a categorical tier for
// non-technical readers.
func confidenceLabel(p float64) string {
	switch {
	case p < 0.01:
		return "99%"
	case p < 0.05:
		return "95%"
	case p < 0.10:
		return "90%"
	default:
		return confidenceNone
	}
}

// normalCDF approximates the cumulative distribution function of the
// standard normal distribution using the erf approximation from
// Abramowitz and Stegun, Handbook of Mathematical Functions, 7.1.26.
// Accurate to roughly 1.5e-7, well inside what the tiers need.
func normalCDF(x float64) float64 {
	a1 := 0.254829592
	a2 := -0.284496736
	a3 := 1.421413741
	a4 := -1.453152027
	a5 := 1.061405429
	p := 0.3275911

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt2

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
