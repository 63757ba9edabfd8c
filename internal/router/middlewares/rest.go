package middlewares

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/pkg/errors"
	"github.com/gorilla/mux"
)

// RESTFID adds to the request context the {fid} that must be present in the REST path.
func RESTFID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fid, err := strconv.ParseUint(mux.Vars(r)["fid"], 10, 64)
		if err != nil || fid == 0 {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(errors.ServiceError{Message: "Invalid fid in path"})
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), ContextKeyFID, castsync.FID(fid)))
		next.ServeHTTP(w, r)
	})
}
