package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sotaro-dev/meetup-payments/internal/interfaces/rest"
)

// Timeout cancels the request context and replies with the standard error
// envelope when a handler exceeds the configured duration.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	body, _ := json.Marshal(rest.ErrorResponse{
		Error: rest.ErrorDetail{
			Code:    "TIMEOUT",
			Message: "request timed out",
		},
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			handler := http.TimeoutHandler(next, timeout, string(body))
			handler.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
