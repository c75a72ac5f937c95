package middleware

import (
	"crypto/subtle"
	"net/http"
)

// SecretHeader carries the shared secret of the generation workers.
const SecretHeader = "X-Webhook-Secret"

// WebhookSecret rejects requests whose SecretHeader does not match secret.
// An empty secret disables the check, which is only allowed in development.
func WebhookSecret(secret string) func(http.Handler) http.Handler {
	want := []byte(secret)
	return func(next http.Handler) http.Handler {
		if len(want) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(SecretHeader))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"invalid webhook secret"},"request_id":"` + RequestIDFromContext(r.Context()) + `"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
