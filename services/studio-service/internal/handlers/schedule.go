package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/booking"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/model"
)

type gridSlot struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

type slotsResponse struct {
	TrainerID string     `json:"trainer_id"`
	Date      string     `json:"date"`
	View      string     `json:"view"`
	Slots     []gridSlot `json:"slots,omitempty"`
	QuickPick []string   `json:"quick_pick,omitempty"`
}

type availabilityRequest struct {
	Windows []windowDTO `json:"windows" validate:"dive"`
}

func (h *Handler) GetSlots(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.schedule.GetSlots"

	q := r.URL.Query()
	slots, err := h.studio.Slots(r.Context(), chi.URLParam(r, "trainerID"), q.Get("date"), booking.View(q.Get("view")))
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	out := slotsResponse{
		TrainerID: slots.TrainerID,
		Date:      slots.Date,
		View:      string(slots.View),
		QuickPick: slots.QuickPick,
	}
	for _, s := range slots.Grid {
		out.Slots = append(out.Slots, gridSlot{
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
			Available: s.Available,
			Reason:    string(s.Reason),
		})
	}
	if out.View == string(booking.ViewTrainer) && out.QuickPick == nil {
		out.QuickPick = []string{}
	}
	render.JSON(w, r, out)
}

func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.schedule.GetAvailability"

	windows, err := h.studio.WeeklyAvailability(r.Context(), chi.URLParam(r, "trainerID"))
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	out := make([]windowDTO, 0, len(windows))
	for _, win := range windows {
		out = append(out, toWindowDTO(win))
	}
	render.JSON(w, r, availabilityRequest{Windows: out})
}

// PutAvailability replaces the whole weekly schedule.
func (h *Handler) PutAvailability(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.schedule.PutAvailability"

	var req availabilityRequest
	if !h.decode(w, r, &req) {
		return
	}
	trainerID := chi.URLParam(r, "trainerID")
	windows := make([]model.WeeklyWindow, 0, len(req.Windows))
	for _, win := range req.Windows {
		windows = append(windows, model.WeeklyWindow{
			TrainerID: trainerID,
			Weekday:   time.Weekday(*win.Weekday),
			StartTime: win.StartTime,
			EndTime:   win.EndTime,
		})
	}

	saved, err := h.studio.ReplaceWeeklyAvailability(r.Context(), CallerFrom(r.Context()), trainerID, windows)
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	out := make([]windowDTO, 0, len(saved))
	for _, win := range saved {
		out = append(out, toWindowDTO(win))
	}
	render.JSON(w, r, availabilityRequest{Windows: out})
}

func (h *Handler) ListUnavailable(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.schedule.ListUnavailable"

	slots, err := h.studio.ListUnavailable(r.Context(), chi.URLParam(r, "trainerID"), r.URL.Query().Get("date"))
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	out := make([]unavailableDTO, 0, len(slots))
	for _, u := range slots {
		out = append(out, toUnavailableDTO(u))
	}
	render.JSON(w, r, map[string]any{"unavailable": out})
}

func (h *Handler) CreateUnavailable(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.schedule.CreateUnavailable"

	var req unavailableDTO
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.studio.CreateUnavailable(r.Context(), CallerFrom(r.Context()), model.UnavailableSlot{
		TrainerID: chi.URLParam(r, "trainerID"),
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Reason:    req.Reason,
	})
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toUnavailableDTO(u))
}

func (h *Handler) DeleteUnavailable(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.schedule.DeleteUnavailable"

	err := h.studio.DeleteUnavailable(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "trainerID"), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
