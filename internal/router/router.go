package router

import (
	"log/slog"
	"net/http"

	"blogapi/internal/config"
	"blogapi/internal/handlers"
	"blogapi/internal/middleware"
	"blogapi/internal/telemetry"

	"go.opentelemetry.io/otel/trace"
)

// RouterDependencies holds everything needed to register routes.
type RouterDependencies struct {
	Cfg         *config.Config
	Logger      *slog.Logger
	BlogHandler *handlers.BlogHandler
	Limiter     *middleware.IPRateLimiter
	Tracer      trace.Tracer
	Metrics     *telemetry.Metrics
	Telemetry   *telemetry.Telemetry
}

func NewRouter(deps RouterDependencies) http.Handler {
	// routing
	appMux := http.NewServeMux()

	appMux.Handle("POST /add", deps.BlogHandler.HandleAddPost())
	appMux.Handle("GET /posts", deps.BlogHandler.HandlePosts())
	appMux.Handle("POST /token", deps.BlogHandler.HandleToken())
	appMux.Handle("GET /bytoken", deps.BlogHandler.HandleImageByToken())

	middlewareStack := []middleware.Middleware{
		middleware.Recover(deps.Logger),
	}

	if deps.Cfg.Metrics.EnableTelemetry {
		// sits above the limiter so rejected requests still get counted
		middlewareStack = append(middlewareStack, middleware.Observability(deps.Tracer, deps.Metrics, deps.Logger))
	}

	middlewareStack = append(middlewareStack,
		deps.Limiter.Middleware(deps.Logger),
		middleware.Logger(deps.Logger), // Inner logger (shows simple text logs)
	)

	appHandler := middleware.Chain(appMux, middlewareStack...)

	rootMux := http.NewServeMux()

	if deps.Telemetry != nil && deps.Telemetry.PrometheusHandler != nil {
		rootMux.Handle("GET /metrics", deps.Telemetry.PrometheusHandler)
	}

	// lightweight for docker keepalive
	rootMux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	rootMux.Handle("/", appHandler)

	return rootMux
}
