package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Send a test event to a running server",
	Long: `Fire a single exposure or conversion event at a running server's
public tracking endpoint. Useful for smoke-testing a deployment.

Examples:
  varianta track --server http://localhost:3000 --experiment <id> --variant <id>
  varianta track --server http://localhost:3000 --experiment <id> --variant <id> --event purchase`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrack()
	},
}

// Command flags
var (
	trackServer     string
	trackExperiment string
	trackVariant    string
	trackEvent      string
	trackSession    string
)

// postEventFn posts a payload and returns status code and body (function
// var so tests can stub the network).
var postEventFn = func(url string, body []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	client := &fasthttp.Client{}
	if err := client.DoTimeout(req, resp, 10*time.Second); err != nil {
		return 0, nil, err
	}

	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return resp.StatusCode(), out, nil
}

func runTrack() error {
	if trackServer == "" {
		return fmt.Errorf("--server is required")
	}
	if _, err := uuid.Parse(trackExperiment); err != nil {
		return fmt.Errorf("invalid --experiment ID: %w", err)
	}
	if _, err := uuid.Parse(trackVariant); err != nil {
		return fmt.Errorf("invalid --variant ID: %w", err)
	}

	session := trackSession
	if session == "" {
		session = "cli_" + uuid.NewString()
	}

	payload, err := json.Marshal(map[string]string{
		"experiment_id": trackExperiment,
		"variant_id":    trackVariant,
		"session_id":    session,
		"event_type":    trackEvent,
	})
	if err != nil {
		return err
	}

	status, body, err := postEventFn(trackServer+"/api/send", payload)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	fmt.Printf("HTTP %d: %s\n", status, string(body))
	if status != 200 {
		return fmt.Errorf("server rejected event (status %d)", status)
	}

	fmt.Printf("Event sent: %s for session %s\n", trackEvent, session)
	return nil
}

func init() {
	trackCmd.Flags().StringVarP(&trackServer, "server", "s", "http://localhost:3000", "Server base URL")
	trackCmd.Flags().StringVarP(&trackExperiment, "experiment", "e", "", "Experiment ID (required)")
	trackCmd.Flags().StringVar(&trackVariant, "variant", "", "Variant ID (required)")
	trackCmd.Flags().StringVar(&trackEvent, "event", "exposure", "Event type")
	trackCmd.Flags().StringVar(&trackSession, "session", "", "Session ID (random when omitted)")

	RootCmd.AddCommand(trackCmd)
}
