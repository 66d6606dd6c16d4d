package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/yanizio/routemgr/internal/apperr"
)

const bearerPrefix = "Bearer "

// bearerAuth rejects any request whose Authorization header does not carry
// the configured token, per spec §6.1. A missing or mismatched token
// responds 403, matching apperr.KindAuth's mapping.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hdr := r.Header.Get("Authorization")
			got, ok := strings.CutPrefix(hdr, bearerPrefix)
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, apperr.Auth("missing or invalid bearer token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
