package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/booking"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/entitlements"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/model"
)

type grantRequest struct {
	PackageType      string `json:"package_type" validate:"required"`
	SessionsIncluded int    `json:"sessions_included" validate:"required,min=1"`
	ValidityDays     int    `json:"validity_days" validate:"min=0"`
	// PurchaseDate is RFC 3339; empty means now.
	PurchaseDate string `json:"purchase_date" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.packages.ListPackages"

	pkgs, err := h.studio.ListPackages(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "clientID"))
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	out := make([]packageResponse, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, toPackageResponse(p))
	}
	render.JSON(w, r, map[string]any{"packages": out})
}

// GrantPackage is the manual, admin-only counterpart of a Stripe purchase.
func (h *Handler) GrantPackage(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.packages.GrantPackage"

	var req grantRequest
	if !h.decode(w, r, &req) {
		return
	}
	g := entitlements.Grant{
		ClientID:         chi.URLParam(r, "clientID"),
		PackageType:      model.SessionType(req.PackageType),
		SessionsIncluded: req.SessionsIncluded,
		Validity:         time.Duration(req.ValidityDays) * 24 * time.Hour,
	}
	if req.PurchaseDate != "" {
		g.PurchaseDate, _ = time.Parse(time.RFC3339, req.PurchaseDate)
	}

	pkg, _, err := h.studio.GrantPackage(r.Context(), CallerFrom(r.Context()), g, booking.ProviderEvent{})
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toPackageResponse(pkg))
}
