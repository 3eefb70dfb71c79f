package stats

import "time"

// Event is a raw exposure or conversion record, already fetched from the
// event store. The aggregator treats it as immutable input.
type Event struct {
	VariantID string
	SessionID string
	EventType string
	Timestamp time.Time
}

// VariantRef identifies a configured variant for aggregation. Variants with
// no events still produce a zero-count row.
type VariantRef struct {
	ID        string
	Name      string
	IsControl bool
}

// VariantResult is the per-variant rollup of visitors and conversions.
type VariantResult struct {
	VariantID      string  `json:"variant_id"`
	VariantName    string  `json:"variant_name"`
	IsControl      bool    `json:"is_control"`
	Visitors       int     `json:"visitors"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
}

// Aggregate rolls raw events up into one VariantResult per configured
// variant, in the given variant order. Distinctness is by session: repeated
// events from the same session count once toward visitors and once toward
// conversions. Events referencing variants outside the configured set are
// ignored. Pure function; aggregating the same input twice yields identical
// output.
func Aggregate(events []Event, variants []VariantRef, goal string) []VariantResult {
	type counter struct {
		sessions   map[string]struct{}
		converting map[string]struct{}
	}

	counters := make(map[string]*counter, len(variants))
	for _, v := range variants {
		counters[v.ID] = &counter{
			sessions:   make(map[string]struct{}),
			converting: make(map[string]struct{}),
		}
	}

	for _, ev := range events {
		c, ok := counters[ev.VariantID]
		if !ok {
			continue
		}
		c.sessions[ev.SessionID] = struct{}{}
		if ev.EventType == goal {
			c.converting[ev.SessionID] = struct{}{}
		}
	}

	results := make([]VariantResult, 0, len(variants))
	for _, v := range variants {
		c := counters[v.ID]
		r := VariantResult{
			VariantID:   v.ID,
			VariantName: v.Name,
			IsControl:   v.IsControl,
			Visitors:    len(c.sessions),
			Conversions: len(c.converting),
		}
		if r.Visitors > 0 {
			r.ConversionRate = float64(r.Conversions) / float64(r.Visitors)
		}
		results = append(results, r)
	}

	return results
}
