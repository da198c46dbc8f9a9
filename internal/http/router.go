package httpx

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Guillaume-slize/digitalsolitude/internal/app"
	"github.com/Guillaume-slize/digitalsolitude/internal/presence"
	"github.com/Guillaume-slize/digitalsolitude/pkg/auth"
	"github.com/Guillaume-slize/digitalsolitude/pkg/metrics"
)

// Deps are the collaborators the router hands to its handlers
type Deps struct {
	Registry *presence.Registry
	Operator *auth.Operator   // optional
	Journal  TransitionLister // optional
	Gatherer prometheus.Gatherer
}

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, d Deps) http.Handler {
	mw := NewMiddleware(cfg)
	api := &PresenceAPI{
		Registry:          d.Registry,
		Log:               logger,
		StreamBuffer:      cfg.StreamBuffer,
		Keepalive:         cfg.StreamKeepalive,
		HeartbeatInterval: cfg.HeartbeatInterval,
		WSOrigins:         originHosts(cfg.CORSAllow),
	}
	admin := &AdminAPI{
		Registry: d.Registry,
		JWT:      auth.New(cfg.JWTSecret),
		Operator: d.Operator,
		Journal:  d.Journal,
	}

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.Handle("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))
	mux.Handle("GET /readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !d.Registry.Accepting() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(d.Gatherer))
	}

	// Streams
	mux.HandleFunc("GET /events", api.Events)
	mux.HandleFunc("GET /ws", api.WS)

	// Liveness calls from the page
	mux.HandleFunc("POST /heartbeat", api.Heartbeat)
	mux.HandleFunc("POST /leave", api.Leave)
	mux.HandleFunc("GET /api/session", api.Session)
	mux.HandleFunc("GET /api/occupancy", api.Occupancy)

	// Operator endpoints (JWT-protected)
	mux.HandleFunc("POST /api/admin/login", admin.Login)
	mux.Handle("GET /api/admin/sessions", mw.Operator(http.HandlerFunc(admin.Sessions)))
	mux.Handle("GET /api/admin/transitions", mw.Operator(http.HandlerFunc(admin.Transitions)))

	return mw.Wrap(mux) // CORS + rate limit applied globally
}

// originHosts turns CORS origins into websocket host patterns
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			hosts = append(hosts, "*")
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}
