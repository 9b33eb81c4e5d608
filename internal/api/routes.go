package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mapcore/server/internal/auth"
	"github.com/mapcore/server/internal/config"
	"github.com/mapcore/server/internal/mapctl"
	"github.com/mapcore/server/internal/performance"
	"github.com/mapcore/server/internal/streaming"
)

// Dependencies are the services behind the HTTP surface. Stream and
// Catalog are optional.
type Dependencies struct {
	Config         *config.Config
	Resolver       *mapctl.Resolver
	Loader         MapLoader
	Stream         *streaming.Manager
	Catalog        Catalog
	Profiler       *performance.Profiler
	AllowedOrigins []string
	RateLimits     RateLimitConfig
}

// NewRouter registers every route and wraps them in the shared middleware.
// The returned hub must be run for tracking sessions to start.
func NewRouter(deps Dependencies) (http.Handler, *TrackHub) {
	if deps.Profiler == nil {
		deps.Profiler = performance.NewProfiler(false)
	}
	if deps.AllowedOrigins == nil {
		deps.AllowedOrigins = DefaultAllowedOrigins
	}
	if deps.RateLimits == (RateLimitConfig{}) {
		deps.RateLimits = DefaultRateLimitConfig()
	}

	jwtService := auth.NewJWTService(deps.Config)
	authHandlers := auth.NewAuthHandlers(deps.Config, jwtService, auth.NewPasswordService(deps.Config))

	hub := NewTrackHub()
	registerGauges(deps.Profiler, hub, deps.Stream)
	maps := NewMapHandlers(deps.Resolver, deps.Loader, deps.Stream, deps.Config.Map.LoadTimeout)
	maps.OnMapChange(hub.NotifyMapChanged)

	mux := http.NewServeMux()
	SetupAuthRoutes(mux, authHandlers, deps.RateLimits)
	SetupMapRoutes(mux, maps, authHandlers, deps.RateLimits)
	SetupPositionRoutes(mux, NewPositionHandlers(deps.Resolver), deps.RateLimits)
	SetupCatalogRoutes(mux, NewCatalogHandlers(deps.Catalog), authHandlers, deps.RateLimits)
	SetupDebugRoutes(mux, NewDebugHandlers(deps.Resolver, deps.Stream, hub, deps.Profiler), deps.Profiler, authHandlers)
	SetupTrackRoutes(mux, NewTrackHandlers(hub, deps.Resolver, maps, jwtService, deps.Profiler, deps.AllowedOrigins))

	globalLimit := RateLimitMiddleware(deps.RateLimits.GlobalLimit, deps.RateLimits.GlobalWindow)
	handler := auth.SecurityHeadersMiddleware(CORSMiddleware(deps.AllowedOrigins)(globalLimit(mux)))
	return handler, hub
}

// registerGauges exports session and dynamic load counts with the
// profiler's metrics
func registerGauges(profiler *performance.Profiler, hub *TrackHub, stream *streaming.Manager) {
	registry := profiler.Registry()
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mapcore_track_sessions",
		Help: "Active tracking WebSocket sessions",
	}, func() float64 { return float64(hub.SessionCount()) }))
	if stream != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "mapcore_dynamic_loads_inflight",
			Help: "Dynamic node loads in progress",
		}, func() float64 { return float64(stream.Inflight()) }))
	}
}

// SetupAuthRoutes registers the token endpoint with rate limiting
func SetupAuthRoutes(mux *http.ServeMux, authHandlers *auth.AuthHandlers, limits RateLimitConfig) {
	authRateLimit := RateLimitMiddleware(limits.AuthLimit, limits.AuthWindow)
	mux.Handle("POST /api/auth/token", authRateLimit(http.HandlerFunc(authHandlers.Token)))
}

// SetupMapRoutes registers active map, camera and streaming routes.
// Changing the active map or running a stream pass requires an admin token.
func SetupMapRoutes(mux *http.ServeMux, handlers *MapHandlers, authHandlers *auth.AuthHandlers, limits RateLimitConfig) {
	operatorLimit := OperatorRateLimitMiddleware(limits.OperatorLimit, limits.OperatorWindow)
	admin := func(h http.HandlerFunc) http.Handler {
		return authHandlers.RequireAdmin(operatorLimit(h))
	}

	mux.HandleFunc("GET /api/map", handlers.GetMap)
	mux.Handle("PUT /api/map", admin(handlers.SetMap))
	mux.Handle("DELETE /api/map", admin(handlers.ClearMap))
	mux.HandleFunc("GET /api/camera", handlers.GetCamera)
	mux.HandleFunc("PUT /api/camera", handlers.SetCamera)
	mux.Handle("POST /api/stream/update", admin(handlers.UpdateStream))
}

// SetupPositionRoutes registers conversion and clamping routes
func SetupPositionRoutes(mux *http.ServeMux, handlers *PositionHandlers, limits RateLimitConfig) {
	queryLimit := RateLimitMiddleware(limits.QueryLimit, limits.QueryWindow)

	mux.Handle("POST /api/positions/local", queryLimit(http.HandlerFunc(handlers.ToLocal)))
	mux.Handle("POST /api/positions/geodetic", queryLimit(http.HandlerFunc(handlers.ToGeodetic)))
	mux.Handle("POST /api/positions/clamp", queryLimit(http.HandlerFunc(handlers.Clamp)))
	mux.Handle("POST /api/positions/pick", queryLimit(http.HandlerFunc(handlers.Pick)))
	mux.Handle("GET /api/altitude", queryLimit(http.HandlerFunc(handlers.Altitude)))
}

// SetupCatalogRoutes registers map catalog routes. Writes require an admin token.
func SetupCatalogRoutes(mux *http.ServeMux, handlers *CatalogHandlers, authHandlers *auth.AuthHandlers, limits RateLimitConfig) {
	operatorLimit := OperatorRateLimitMiddleware(limits.OperatorLimit, limits.OperatorWindow)

	mux.HandleFunc("GET /api/catalog", handlers.ListMaps)
	mux.HandleFunc("GET /api/catalog/{name}", handlers.GetMapInfo)
	mux.Handle("PUT /api/catalog/{name}", authHandlers.RequireAdmin(operatorLimit(http.HandlerFunc(handlers.PutMap))))
	mux.Handle("DELETE /api/catalog/{name}", authHandlers.RequireAdmin(operatorLimit(http.HandlerFunc(handlers.DeleteMap))))
}

// SetupDebugRoutes registers health, profiling and Prometheus routes
func SetupDebugRoutes(mux *http.ServeMux, handlers *DebugHandlers, profiler *performance.Profiler, authHandlers *auth.AuthHandlers) {
	mux.HandleFunc("GET /health", handlers.Health)
	mux.HandleFunc("GET /api/debug/performance", handlers.Performance)
	mux.Handle("DELETE /api/debug/performance", authHandlers.RequireAdmin(http.HandlerFunc(handlers.ResetPerformance)))
	mux.Handle("GET /metrics", profiler.Handler())
}

// SetupTrackRoutes registers the tracking WebSocket endpoint
func SetupTrackRoutes(mux *http.ServeMux, handlers *TrackHandlers) {
	mux.HandleFunc("GET /ws/track", handlers.HandleWebSocket)
}
