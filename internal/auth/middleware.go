package auth

import (
	"context"
	"encoding/json"
	"net/http"
)

// HeaderInternalToken carries the shared-secret service token between
// services. Issuance is owned by the upstream auth service; here we only
// verify and extract the caller.
const HeaderInternalToken = "X-Internal-Token"

type ctxKey struct{}

// FromContext returns the caller injected by Middleware.
func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(Caller)
	return c, ok
}

// WithCaller is used by tests and in-process wiring.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// Middleware rejects requests without a valid internal token and puts the
// caller identity on the request context.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(HeaderInternalToken)
			if raw == "" {
				unauthorized(w, "missing internal token")
				return
			}
			c, err := Verify(secret, raw)
			if err != nil {
				unauthorized(w, "invalid internal token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), c)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
