package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
)

// AdminGate guards the admin surface with a single shared secret presented as
// a bearer token. Comparison is constant-time over fixed-length digests so
// neither content nor length leaks. An empty configured secret disables the
// admin surface entirely (503) rather than leaving it open.
func AdminGate(sharedSecret string, writeError func(w http.ResponseWriter, status int, code, message string)) func(http.Handler) http.Handler {
	configured := sharedSecret != ""
	want := sha256.Sum256([]byte(sharedSecret))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !configured {
				writeError(w, http.StatusServiceUnavailable, "admin_disabled", "admin endpoints are disabled")
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing admin credentials")
				return
			}

			got := sha256.Sum256([]byte(token))
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid admin credentials")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
