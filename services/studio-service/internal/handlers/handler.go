package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/booking"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/entitlements"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/model"
)

// Studio is the booking service as seen by the HTTP layer.
type Studio interface {
	Book(ctx context.Context, caller booking.Caller, req booking.BookRequest) (booking.Result, error)
	Reschedule(ctx context.Context, caller booking.Caller, req booking.RescheduleRequest) (booking.Result, error)
	Cancel(ctx context.Context, caller booking.Caller, sessionID string) (booking.Result, error)
	RequestReschedule(ctx context.Context, caller booking.Caller, req booking.RescheduleRequest) (booking.Result, error)
	ApproveReschedule(ctx context.Context, caller booking.Caller, sessionID string) (booking.Result, error)
	DenyReschedule(ctx context.Context, caller booking.Caller, sessionID string) (booking.Result, error)
	GetSession(ctx context.Context, caller booking.Caller, id string) (model.Session, error)
	ListSessions(ctx context.Context, caller booking.Caller, role model.Role, personID, date string) ([]model.Session, error)

	Slots(ctx context.Context, trainerID, date string, view booking.View) (booking.Slots, error)
	WeeklyAvailability(ctx context.Context, trainerID string) ([]model.WeeklyWindow, error)
	ReplaceWeeklyAvailability(ctx context.Context, caller booking.Caller, trainerID string, windows []model.WeeklyWindow) ([]model.WeeklyWindow, error)
	ListUnavailable(ctx context.Context, trainerID, date string) ([]model.UnavailableSlot, error)
	CreateUnavailable(ctx context.Context, caller booking.Caller, u model.UnavailableSlot) (model.UnavailableSlot, error)
	DeleteUnavailable(ctx context.Context, caller booking.Caller, trainerID, id string) error

	ListPackages(ctx context.Context, caller booking.Caller, clientID string) ([]model.Package, error)
	GrantPackage(ctx context.Context, caller booking.Caller, g entitlements.Grant, ev booking.ProviderEvent) (model.Package, bool, error)
}

var _ Studio = (*booking.Service)(nil)

type Handler struct {
	studio   Studio
	logger   *slog.Logger
	validate *validator.Validate
	stripe   StripeConfig
}

func New(studio Studio, logger *slog.Logger, stripe StripeConfig) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		studio:   studio,
		logger:   logger,
		validate: v,
		stripe:   stripe,
	}
}

// Routes mounts the API. Everything except the Stripe webhook requires a
// caller identity.
func (h *Handler) Routes(authn Authenticator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/billing/stripe/webhook", h.StripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(authn.Middleware)

			r.Route("/trainers/{trainerID}", func(r chi.Router) {
				r.Get("/slots", h.GetSlots)
				r.Get("/availability", h.GetAvailability)
				r.Put("/availability", h.PutAvailability)
				r.Get("/unavailable", h.ListUnavailable)
				r.Post("/unavailable", h.CreateUnavailable)
				r.Delete("/unavailable/{id}", h.DeleteUnavailable)
			})

			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", h.ListSessions)
				r.Post("/", h.Book)
				r.Get("/{id}", h.GetSession)
				r.Post("/{id}/reschedule", h.Reschedule)
				r.Post("/{id}/cancel", h.Cancel)
				r.Post("/{id}/reschedule-request", h.RequestReschedule)
				r.Post("/{id}/reschedule-request/approve", h.ApproveReschedule)
				r.Post("/{id}/reschedule-request/deny", h.DenyReschedule)
			})

			r.Get("/clients/{clientID}/packages", h.ListPackages)
			r.Post("/clients/{clientID}/packages", h.GrantPackage)
		})
	})
	return r
}
