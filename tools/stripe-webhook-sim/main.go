// Command stripe-webhook-sim posts a signed checkout.session.completed event
// for a session package to a local studio-service.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"
)

func main() {
	var (
		baseURL  = flag.String("base-url", getenv("BASE_URL", "http://localhost:8083"), "studio-service base url")
		client   = flag.String("client-id", getenv("CLIENT_ID", ""), "client_id metadata")
		pkgType  = flag.String("package-type", getenv("PACKAGE_TYPE", "Personal Training"), "package_type metadata")
		sessions = flag.Int("sessions", 10, "sessions_included metadata")
		validity = flag.Int("validity-days", 90, "validity_days metadata (0 = never expires)")
		eventID  = flag.String("event-id", "", "reuse an event id to exercise replay protection")
		secret   = flag.String("secret", getenv("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*client) == "" {
		fatal("CLIENT_ID is required")
	}

	now := time.Now().UTC()
	id := *eventID
	if id == "" {
		id = fmt.Sprintf("evt_test_%d", now.UnixNano())
	}

	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"created":     now.Unix(),
		"type":        "checkout.session.completed",
		"api_version": "2024-06-20",
		"data": map[string]any{
			"object": map[string]any{
				"id":     "cs_test_" + strconv.FormatInt(now.Unix(), 10),
				"object": "checkout.session",
				"metadata": map[string]string{
					"client_id":         *client,
					"package_type":      *pkgType,
					"sessions_included": strconv.Itoa(*sessions),
					"validity_days":     strconv.Itoa(*validity),
				},
			},
		},
	})
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/billing/stripe/webhook", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	fmt.Printf("event=%s status=%d body=%s\n", id, resp.StatusCode, strings.TrimSpace(string(body)))
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
