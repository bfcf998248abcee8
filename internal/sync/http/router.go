package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/harborworks/fieldsync/internal/sync/service"
	"github.com/harborworks/fieldsync/internal/sync/store"
	"github.com/harborworks/fieldsync/pkg/httpx"
	"github.com/harborworks/fieldsync/pkg/jwtx"
	"github.com/harborworks/fieldsync/pkg/metricsx"
	"github.com/harborworks/fieldsync/pkg/slogx"
)

// ScopeManage gates the review and identification surface; ScopeSyncRead
// additionally grants read access to the event log.
const (
	ScopeManage   = "biometrics:manage"
	ScopeSyncRead = "sync:read"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store

	IngestService     *service.IngestService
	EnrollmentService *service.EnrollmentService
	IdentifyService   *service.IdentifyService
}

func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		metricsx.Instrument,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerEvents()
	r.registerFiles()
	r.registerRequests()
	r.registerEnrollmentStatus()
	r.registerIdentify()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerEvents() {
	h := &EventsHandler{IngestService: r.IngestService}

	// POST /v1/offline-events - generous limit: a reconnecting client
	// replays its whole queue in one burst.
	r.Mux.Handle("POST /v1/offline-events",
		httpx.Chain(http.HandlerFunc(h.HandlePost),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByActor(httpx.IngestLimit),
		),
	)

	// GET /v1/offline-events - support tooling read
	r.Mux.Handle("GET /v1/offline-events",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireAnyScope(ScopeManage, ScopeSyncRead),
			httpx.RateLimitByActor(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerFiles() {
	h := &FilesHandler{Store: r.IngestService.Blobs}

	secured := httpx.Chain(h,
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByActor(httpx.LenientLimit),
	)

	r.Mux.Handle("GET /v1/offline-files/{blobId}", secured)
	r.Mux.Handle("HEAD /v1/offline-files/{blobId}", secured)
}

func (r *Router) registerRequests() {
	h := &RequestsHandler{EnrollmentService: r.EnrollmentService}

	secure := func(next http.HandlerFunc) http.Handler {
		return httpx.Chain(next,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireAnyScope(ScopeManage),
			httpx.RateLimitByActor(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("GET /v1/biometric-requests", secure(h.HandleList))
	r.Mux.Handle("GET /v1/biometric-requests/{id}", secure(h.HandleGet))
	r.Mux.Handle("POST /v1/biometric-requests/{id}/approve", secure(h.HandleApprove))
	r.Mux.Handle("POST /v1/biometric-requests/{id}/reject", secure(h.HandleReject))
}

func (r *Router) registerEnrollmentStatus() {
	h := &EnrollmentStatusHandler{EnrollmentService: r.EnrollmentService}

	// Polling endpoint for the enrolling user's own device - lenient limit
	r.Mux.Handle("GET /v1/biometric-enrollment-status/{userId}",
		httpx.Chain(h,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByActor(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerIdentify() {
	h := &IdentifyHandler{IdentifyService: r.IdentifyService}

	r.Mux.Handle("POST /v1/biometric-identify",
		httpx.Chain(h,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireAnyScope(ScopeManage),
			httpx.RateLimitByActor(httpx.IngestLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	r.Mux.Handle("GET /metrics", metricsx.Handler())
}
