package handlers

import (
	"time"

	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/booking"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/model"
)

type slotDTO struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type sessionResponse struct {
	ID               string   `json:"id"`
	ClientID         string   `json:"client_id"`
	TrainerID        string   `json:"trainer_id"`
	PackageID        string   `json:"package_id,omitempty"`
	Type             string   `json:"type"`
	Date             string   `json:"date"`
	StartTime        string   `json:"start_time"`
	EndTime          string   `json:"end_time"`
	Status           string   `json:"status"`
	RescheduleStatus string   `json:"reschedule_status"`
	Proposed         *slotDTO `json:"proposed,omitempty"`
	CreatedAt        string   `json:"created_at,omitempty"`
	UpdatedAt        string   `json:"updated_at,omitempty"`
}

type packageResponse struct {
	ID               string `json:"id"`
	ClientID         string `json:"client_id"`
	PackageType      string `json:"package_type"`
	SessionsIncluded int    `json:"sessions_included"`
	SessionsUsed     int    `json:"sessions_used"`
	Remaining        int    `json:"remaining"`
	Status           string `json:"status"`
	PurchaseDate     string `json:"purchase_date"`
	ExpiryDate       string `json:"expiry_date,omitempty"`
}

type resultResponse struct {
	Session   sessionResponse  `json:"session"`
	Package   *packageResponse `json:"package,omitempty"`
	Unchanged bool             `json:"unchanged,omitempty"`
	Warnings  []string         `json:"warnings,omitempty"`
}

type windowDTO struct {
	Weekday   *int   `json:"weekday" validate:"required,min=0,max=6"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

type unavailableDTO struct {
	ID        string `json:"id,omitempty"`
	TrainerID string `json:"trainer_id,omitempty"`
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Reason    string `json:"reason,omitempty" validate:"max=200"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toSessionResponse(s model.Session) sessionResponse {
	out := sessionResponse{
		ID:               s.ID,
		ClientID:         s.ClientID,
		TrainerID:        s.TrainerID,
		PackageID:        s.PackageID,
		Type:             string(s.Type),
		Date:             s.Date,
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		Status:           string(s.Status),
		RescheduleStatus: string(s.RescheduleStatus),
		CreatedAt:        formatTime(s.CreatedAt),
		UpdatedAt:        formatTime(s.UpdatedAt),
	}
	if s.Proposed != nil {
		out.Proposed = &slotDTO{Date: s.Proposed.Date, StartTime: s.Proposed.StartTime, EndTime: s.Proposed.EndTime}
	}
	return out
}

func toPackageResponse(p model.Package) packageResponse {
	out := packageResponse{
		ID:               p.ID,
		ClientID:         p.ClientID,
		PackageType:      string(p.PackageType),
		SessionsIncluded: p.SessionsIncluded,
		SessionsUsed:     p.SessionsUsed,
		Remaining:        p.Remaining(),
		Status:           string(p.Status),
		PurchaseDate:     formatTime(p.PurchaseDate),
	}
	if p.ExpiryDate != nil {
		out.ExpiryDate = formatTime(*p.ExpiryDate)
	}
	return out
}

func toResultResponse(res booking.Result) resultResponse {
	out := resultResponse{
		Session:   toSessionResponse(res.Session),
		Unchanged: res.Unchanged,
		Warnings:  res.Warnings,
	}
	if res.Package != nil {
		p := toPackageResponse(*res.Package)
		out.Package = &p
	}
	return out
}

func toWindowDTO(w model.WeeklyWindow) windowDTO {
	day := int(w.Weekday)
	return windowDTO{Weekday: &day, StartTime: w.StartTime, EndTime: w.EndTime}
}

func toUnavailableDTO(u model.UnavailableSlot) unavailableDTO {
	return unavailableDTO{
		ID:        u.ID,
		TrainerID: u.TrainerID,
		Date:      u.Date,
		StartTime: u.StartTime,
		EndTime:   u.EndTime,
		Reason:    u.Reason,
	}
}
