package chi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// exemptPaths bypass authentication.
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// BearerAuthMiddleware validates Bearer tokens against apiKeys.
// With no non-empty keys, authentication is disabled.
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	var keys [][]byte
	for _, k := range apiKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing authorization header")
				return
			}

			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "authorization header must use Bearer scheme")
				return
			}

			if !validKey(keys, []byte(token)) {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid api key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func validKey(keys [][]byte, token []byte) bool {
	for _, k := range keys {
		if subtle.ConstantTimeCompare(k, token) == 1 {
			return true
		}
	}
	return false
}
