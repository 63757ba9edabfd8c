package middlewares

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/castsync/go-castsync/pkg/errors"
	"github.com/gorilla/mux"
)

// APIKey requires requests to carry the configured key in the Api-Key header.
// An empty configured key disables the check.
func APIKey(key string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key != "" {
				provided := r.Header.Get("Api-Key")
				if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
					w.WriteHeader(http.StatusUnauthorized)
					_ = json.NewEncoder(w).Encode(errors.ServiceError{Message: "Invalid api key"})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
