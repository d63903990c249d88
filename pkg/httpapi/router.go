package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nocauto/noc-engine/pkg/baseline"
	"github.com/nocauto/noc-engine/pkg/cache/blobcache"
	"github.com/nocauto/noc-engine/pkg/credential"
	"github.com/nocauto/noc-engine/pkg/discovery"
	"github.com/nocauto/noc-engine/pkg/settings"
	"github.com/nocauto/noc-engine/pkg/topology"
	"github.com/nocauto/noc-engine/pkg/util"
)

// usernameHeader is the externally validated identity the engine trusts;
// see the package doc for the authentication boundary this assumes.
const usernameHeader = "X-Noc-Username"

// Server wires every handler group over its collaborating components.
// Each field is the narrow surface a handler group actually calls, so
// tests can substitute fakes without touching the others.
type Server struct {
	Runner       *discovery.Runner
	Orchestrator *discovery.Orchestrator
	TopologyDB   topology.Reader
	Blobs        *blobcache.Cache
	Baselines    *baseline.Engine
	Scheduler    SchedulerStore
	Settings     *settings.Store
	Credentials  *credential.Store
	Metrics      *Metrics
}

// NewRouter builds the chi router for every operator API endpoint plus
// /metrics.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*", usernameHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Post("/discover-sync", s.handleDiscoverSync)
	r.Post("/discover-async", s.handleDiscoverAsync)
	r.Get("/discover/progress/{jobID}", s.handleDiscoverProgress)
	r.Delete("/discover/{jobID}", s.handleDiscoverCancel)

	r.Get("/topology/build", s.handleTopologyBuild)
	r.Post("/topology/build", s.handleTopologyBuild)
	r.Get("/topology/statistics", s.handleTopologyStatistics)
	r.Post("/topology/resolve-neighbor", s.handleResolveNeighbor)

	r.Get("/cache/json/{deviceID}", s.handleCacheGet)
	r.Post("/cache/json/{deviceID}", s.handleCacheSet)
	r.Delete("/cache/json/{deviceID}", s.handleCacheDelete)
	r.Get("/cache/statistics", s.handleCacheStatistics)

	r.Get("/scheduler/tasks", s.handleListTasks)
	r.Post("/scheduler/tasks", s.handleCreateTask)
	r.Get("/scheduler/tasks/{taskID}", s.handleGetTask)
	r.Put("/scheduler/tasks/{taskID}", s.handleUpdateTask)
	r.Delete("/scheduler/tasks/{taskID}", s.handleDeleteTask)
	r.Get("/scheduler/available-tasks", s.handleAvailableTasks)

	r.Post("/credentials", s.handleSaveCredential)

	return r
}

// requestLogger logs each request's method, path, status, and latency via
// the engine's shared logrus logger, matching the style of
// util.WithFields used everywhere else rather than chi's stdlib-backed
// default logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		util.WithFields(map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start).String(),
		}).Info("http request")
	})
}

func callerUsername(r *http.Request) string {
	return r.Header.Get(usernameHeader)
}
