package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/castsync/go-castsync/internal/router/controllers"
	"github.com/castsync/go-castsync/internal/router/middlewares"
	"github.com/castsync/go-castsync/internal/targets"
	targetsimpl "github.com/castsync/go-castsync/internal/targets/impl"
	"github.com/gorilla/mux"
)

// ConfiguredRouter returns a fully configured Router that can be used as an http handler.
func ConfiguredRouter(
	maxRPI uint64,
	rateLimInterval time.Duration,
	apiKey string,
	service targets.TargetsService,
) (*Router, error) {
	instrService, err := targetsimpl.NewInstrumentedTargetsService(service)
	if err != nil {
		return nil, fmt.Errorf("instrumenting targets service: %s", err)
	}
	targetsController := controllers.NewTargetsController(instrService)
	infraController := controllers.NewInfraController()

	// General router configuration.
	router := NewRouter()
	router.Use(middlewares.CORS, middlewares.TraceID)

	rateLim, err := middlewares.RateLimitController(middlewares.RateLimiterConfig{
		MaxRPI:   maxRPI,
		Interval: rateLimInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("creating rate limit controller middleware: %s", err)
	}
	auth := middlewares.APIKey(apiKey)

	// Admin API configuration.
	router.Post("/api/v1/targets", targetsController.AddTarget, middlewares.WithLogging, middlewares.OtelHTTP("AddTarget"), auth, rateLim)                                        // nolint
	router.Get("/api/v1/targets", targetsController.ListTargets, middlewares.WithLogging, middlewares.OtelHTTP("ListTargets"), auth, rateLim)                                     // nolint
	router.Patch("/api/v1/targets/{fid}", targetsController.UpdateTarget, middlewares.WithLogging, middlewares.OtelHTTP("UpdateTarget"), middlewares.RESTFID, auth, rateLim)      // nolint
	router.Delete("/api/v1/targets/{fid}", targetsController.RemoveTarget, middlewares.WithLogging, middlewares.OtelHTTP("RemoveTarget"), middlewares.RESTFID, auth, rateLim)     // nolint
	router.Post("/api/v1/targets/{fid}/backfill", targetsController.TriggerBackfill, middlewares.WithLogging, middlewares.OtelHTTP("TriggerBackfill"), middlewares.RESTFID, auth, rateLim) // nolint

	router.Post("/api/v1/client-targets", targetsController.AddClientTarget, middlewares.WithLogging, middlewares.OtelHTTP("AddClientTarget"), auth, rateLim)                                    // nolint
	router.Get("/api/v1/client-targets", targetsController.ListClientTargets, middlewares.WithLogging, middlewares.OtelHTTP("ListClientTargets"), auth, rateLim)                                 // nolint
	router.Delete("/api/v1/client-targets/{fid}", targetsController.RemoveClientTarget, middlewares.WithLogging, middlewares.OtelHTTP("RemoveClientTarget"), middlewares.RESTFID, auth, rateLim) // nolint

	router.Get("/api/v1/queues/{queue}/counts", targetsController.QueueCounts, middlewares.WithLogging, middlewares.OtelHTTP("QueueCounts"), auth, rateLim) // nolint
	router.Post("/api/v1/queues/{queue}/{action}", targetsController.QueueAction, middlewares.WithLogging, middlewares.OtelHTTP("QueueAction"), auth, rateLim) // nolint

	router.Get("/api/v1/status", targetsController.Status, middlewares.WithLogging, middlewares.OtelHTTP("Status"), auth, rateLim) // nolint
	router.Get("/api/v1/hub", targetsController.HubInfo, middlewares.WithLogging, middlewares.OtelHTTP("HubInfo"), auth, rateLim)  // nolint

	router.Get("/version", infraController.Version, middlewares.WithLogging, middlewares.OtelHTTP("Version"), rateLim) // nolint

	// Health endpoint configuration.
	router.Get("/healthz", healthHandler)
	router.Get("/health", healthHandler)

	return router, nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Router provides a nice api around mux.Router.
type Router struct {
	r *mux.Router
}

// NewRouter is a Mux HTTP router constructor.
func NewRouter() *Router {
	r := mux.NewRouter()
	r.PathPrefix("/").Methods(http.MethodOptions) // accept OPTIONS on all routes and do nothing
	return &Router{r: r}
}

// Get creates a subroute on the specified URI that only accepts GET. You can provide specific middlewares.
func (r *Router) Get(uri string, f func(http.ResponseWriter, *http.Request), mid ...mux.MiddlewareFunc) {
	sub := r.r.Path(uri).Subrouter()
	sub.HandleFunc("", f).Methods(http.MethodGet)
	sub.Use(mid...)
}

// Post creates a subroute on the specified URI that only accepts POST. You can provide specific middlewares.
func (r *Router) Post(uri string, f func(http.ResponseWriter, *http.Request), mid ...mux.MiddlewareFunc) {
	sub := r.r.Path(uri).Subrouter()
	sub.HandleFunc("", f).Methods(http.MethodPost)
	sub.Use(mid...)
}

// Patch creates a subroute on the specified URI that only accepts PATCH. You can provide specific middlewares.
func (r *Router) Patch(uri string, f func(http.ResponseWriter, *http.Request), mid ...mux.MiddlewareFunc) {
	sub := r.r.Path(uri).Subrouter()
	sub.HandleFunc("", f).Methods(http.MethodPatch)
	sub.Use(mid...)
}

// Delete creates a subroute on the specified URI that only accepts DELETE. You can provide specific middlewares.
func (r *Router) Delete(uri string, f func(http.ResponseWriter, *http.Request), mid ...mux.MiddlewareFunc) {
	sub := r.r.Path(uri).Subrouter()
	sub.HandleFunc("", f).Methods(http.MethodDelete)
	sub.Use(mid...)
}

// Use adds middlewares to all routes. Should be used when a middleware should be execute all all routes (e.g. CORS).
func (r *Router) Use(mid ...mux.MiddlewareFunc) {
	r.r.Use(mid...)
}

// Handler returns the configured router http handler.
func (r *Router) Handler() http.Handler {
	return r.r
}
