package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/booking"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/entitlements"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/model"
)

type StripeConfig struct {
	WebhookSecret string
	// Tolerance is the accepted signature age; zero uses the library default.
	Tolerance time.Duration
}

// StripeWebhook grants a package for every completed checkout session. The
// signature is the only authentication.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.StripeWebhook"

	if strings.TrimSpace(h.stripe.WebhookSecret) == "" {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, errorBody("not_configured", "stripe webhook not configured"))
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorBody("bad_request", "missing Stripe-Signature header"))
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorBody("bad_request", "failed to read request body"))
		return
	}

	tolerance := h.stripe.Tolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, h.stripe.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorBody("bad_request", "invalid signature"))
		return
	}
	h.logger.InfoContext(r.Context(), "billing provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", string(evt.Type),
	)

	if evt.Type != stripe.EventTypeCheckoutSessionCompleted {
		render.JSON(w, r, map[string]string{"status": "ignored"})
		return
	}

	grant, ok := h.grantFromCheckout(r, evt)
	if !ok {
		render.JSON(w, r, map[string]string{"status": "ignored"})
		return
	}
	pkg, created, err := h.studio.GrantPackage(r.Context(), booking.SystemCaller, grant, booking.ProviderEvent{
		Provider: "stripe",
		EventID:  evt.ID,
	})
	if err != nil {
		if booking.KindOf(err) == booking.KindInvalidInput {
			h.logger.WarnContext(r.Context(), "stripe: package grant rejected", "provider_event_id", evt.ID, "err", err)
			render.JSON(w, r, map[string]string{"status": "ignored"})
			return
		}
		h.fail(w, r, op, err)
		return
	}
	if !created {
		render.JSON(w, r, map[string]string{"status": "duplicate"})
		return
	}
	render.JSON(w, r, map[string]string{"status": "granted", "package_id": pkg.ID})
}

// grantFromCheckout reads the package terms from the checkout session's
// metadata: client_id, package_type, sessions_included and validity_days.
func (h *Handler) grantFromCheckout(r *http.Request, evt stripe.Event) (entitlements.Grant, bool) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
		h.logger.ErrorContext(r.Context(), "stripe: invalid checkout session payload", "err", err)
		return entitlements.Grant{}, false
	}
	md := session.Metadata
	clientID := strings.TrimSpace(md["client_id"])
	pkgType := strings.TrimSpace(md["package_type"])
	sessions, err := strconv.Atoi(strings.TrimSpace(md["sessions_included"]))
	if clientID == "" || pkgType == "" || err != nil {
		h.logger.WarnContext(r.Context(), "stripe: missing metadata on checkout session (client_id/package_type/sessions_included)",
			"provider_event_id", evt.ID)
		return entitlements.Grant{}, false
	}
	g := entitlements.Grant{
		ClientID:         clientID,
		PackageType:      model.SessionType(pkgType),
		SessionsIncluded: sessions,
	}
	if evt.Created > 0 {
		g.PurchaseDate = time.Unix(evt.Created, 0).UTC()
	}
	if days, err := strconv.Atoi(strings.TrimSpace(md["validity_days"])); err == nil && days > 0 {
		g.Validity = time.Duration(days) * 24 * time.Hour
	}
	return g, true
}
