package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// BearerAuth guards the /v1 routes with a static API token. Requests without
// "Authorization: Bearer <token>" get 401 and an ErrorResponse.
func BearerAuth(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				slog.Warn("api: rejected request with wrong token", "path", r.URL.Path, "remote", r.RemoteAddr)
				unauthorized(w, "invalid API token; set SQLRAG_API_TOKEN to the server's token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="sqlrag"`)
	httpError(w, http.StatusUnauthorized, codeUnauthorized, "%s", msg)
}
