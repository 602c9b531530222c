package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/md-rashed-zaman/studiosched/libs/auth"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/booking"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/model"
)

type callerKey struct{}

// Authenticator resolves the caller from a bearer token, or from the
// gateway's X-User-Id / X-Role headers when TrustHeaders is set.
type Authenticator struct {
	JWTSecret    string
	TrustHeaders bool
}

func (a Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := a.resolve(r)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, errorBody("unauthorized", "missing or invalid credentials"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func (a Authenticator) resolve(r *http.Request) (booking.Caller, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			return booking.Caller{}, false
		}
		claims, err := auth.ParseAndVerifyHS256(strings.TrimSpace(token), a.JWTSecret)
		if err != nil {
			return booking.Caller{}, false
		}
		return callerOf(claims.Sub, claims.Role)
	}
	if a.TrustHeaders {
		return callerOf(r.Header.Get("X-User-Id"), r.Header.Get("X-Role"))
	}
	return booking.Caller{}, false
}

func callerOf(id, role string) (booking.Caller, bool) {
	c := booking.Caller{UserID: strings.TrimSpace(id), Role: model.Role(strings.ToLower(strings.TrimSpace(role)))}
	if c.UserID == "" || !c.Role.Valid() {
		return booking.Caller{}, false
	}
	return c, true
}

func WithCaller(ctx context.Context, c booking.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func CallerFrom(ctx context.Context) booking.Caller {
	c, _ := ctx.Value(callerKey{}).(booking.Caller)
	return c
}
