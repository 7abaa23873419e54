package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// withBearerToken guards a handler with a static bearer token. An empty
// token disables the check so local deployments can run without auth; user
// identity still comes from the X-User header either way.
func withBearerToken(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
