package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/booking"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/model"
)

type bookRequest struct {
	ClientID  string `json:"client_id"`
	TrainerID string `json:"trainer_id" validate:"required"`
	Type      string `json:"type" validate:"required"`
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status" validate:"omitempty,oneof=confirmed pending"`
}

type slotRequest struct {
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time"`
}

func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.sessions.Book"

	var req bookRequest
	if !h.decode(w, r, &req) {
		return
	}
	caller := CallerFrom(r.Context())
	if req.ClientID == "" && caller.Role == model.RoleClient {
		req.ClientID = caller.UserID
	}

	res, err := h.studio.Book(r.Context(), caller, booking.BookRequest{
		ClientID:  req.ClientID,
		TrainerID: req.TrainerID,
		Type:      model.SessionType(req.Type),
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    model.SessionStatus(req.Status),
	})
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toResultResponse(res))
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.sessions.Reschedule"

	var req slotRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.studio.Reschedule(r.Context(), CallerFrom(r.Context()), booking.RescheduleRequest{
		SessionID: chi.URLParam(r, "id"),
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	render.JSON(w, r, toResultResponse(res))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.sessions.Cancel"

	res, err := h.studio.Cancel(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	render.JSON(w, r, toResultResponse(res))
}

func (h *Handler) RequestReschedule(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.sessions.RequestReschedule"

	var req slotRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.studio.RequestReschedule(r.Context(), CallerFrom(r.Context()), booking.RescheduleRequest{
		SessionID: chi.URLParam(r, "id"),
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	render.JSON(w, r, toResultResponse(res))
}

func (h *Handler) ApproveReschedule(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.sessions.ApproveReschedule"

	res, err := h.studio.ApproveReschedule(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	render.JSON(w, r, toResultResponse(res))
}

func (h *Handler) DenyReschedule(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.sessions.DenyReschedule"

	res, err := h.studio.DenyReschedule(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	render.JSON(w, r, toResultResponse(res))
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.sessions.GetSession"

	sess, err := h.studio.GetSession(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	render.JSON(w, r, toSessionResponse(sess))
}

// ListSessions defaults role and person_id to the caller.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.sessions.ListSessions"

	caller := CallerFrom(r.Context())
	q := r.URL.Query()
	role := model.Role(q.Get("role"))
	if role == "" {
		role = caller.Role
	}
	personID := q.Get("person_id")
	if personID == "" {
		personID = caller.UserID
	}

	sessions, err := h.studio.ListSessions(r.Context(), caller, role, personID, q.Get("date"))
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionResponse(s))
	}
	render.JSON(w, r, map[string]any{"sessions": out})
}
