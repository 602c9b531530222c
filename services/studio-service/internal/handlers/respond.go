package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/md-rashed-zaman/studiosched/libs/httpx"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/booking"
)

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorBody(code, msg string) errorResponse {
	return errorResponse{Error: errorDetail{Code: code, Message: msg}}
}

// StatusFor maps a booking error kind to its HTTP status.
func StatusFor(kind booking.Kind) int {
	switch kind {
	case booking.KindInvalidSlot, booking.KindOutOfRange, booking.KindInvalidTimeFormat, booking.KindInvalidInput:
		return http.StatusUnprocessableEntity
	case booking.KindClientConflict, booking.KindTrainerConflict, booking.KindSlotLocked, booking.KindInvalidTransition:
		return http.StatusConflict
	case booking.KindNoPackage, booking.KindPackageExpired, booking.KindPackageExhausted:
		return http.StatusPaymentRequired
	case booking.KindPackageNotFound, booking.KindSessionNotFound, booking.KindNotFound:
		return http.StatusNotFound
	case booking.KindForbidden:
		return http.StatusForbidden
	case booking.KindPersistenceFailure:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	var be *booking.Error
	if !errors.As(err, &be) {
		h.logger.ErrorContext(r.Context(), "request failed", "op", op, "request_id", httpx.RequestIDFromContext(r.Context()), "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorBody("internal", "internal error"))
		return
	}

	status := StatusFor(be.Kind)
	msg := be.Msg
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "op", op, "request_id", httpx.RequestIDFromContext(r.Context()), "err", err)
		msg = "storage temporarily unavailable"
	} else {
		h.logger.InfoContext(r.Context(), "request rejected", "op", op, "kind", be.Kind, "msg", be.Msg)
	}
	if msg == "" {
		msg = strings.ReplaceAll(string(be.Kind), "_", " ")
	}
	render.Status(r, status)
	render.JSON(w, r, errorBody(string(be.Kind), msg))
}

// decode reads a JSON body into dst and runs struct validation.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorBody("bad_request", "failed to decode request"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		msg := err.Error()
		if errors.As(err, &verrs) {
			msg = validationMessage(verrs)
		}
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorBody("bad_request", msg))
		return false
	}
	return true
}

func validationMessage(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field '%s' is required", err.Field()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("field '%s' must be at least %s", err.Field(), err.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("field '%s' must be at most %s", err.Field(), err.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("field '%s' must be one of: %s", err.Field(), err.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("field '%s' is invalid", err.Field()))
		}
	}
	return strings.Join(msgs, ", ")
}
