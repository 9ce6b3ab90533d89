package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"portfolio_bridge/internal/middleware"
)

// RouterOptions configures the API surface.
type RouterOptions struct {
	// APIToken, when set, is required as a bearer token on /api routes.
	APIToken string
}

// NewRouter mounts every API route. ctx bounds the background work of the
// per-IP limiters.
func NewRouter(ctx context.Context, deps *Dependencies, opts RouterOptions) http.Handler {
	portfolio := NewPortfolioHandler(deps)
	market := NewMarketHandler(deps)
	sessions := NewSessionHandler(deps, NewScriptOutbox())
	heartbeats := NewHeartbeatHandler(deps)
	auth := middleware.NewTokenAuth(opts.APIToken)

	r := chi.NewRouter()

	// Chi middleware (aliased as chimw to avoid conflict with our middleware package)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", health(deps))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireToken)

		// Reads
		r.Group(func(r chi.Router) {
			r.Use(middleware.LimitAPI(ctx))
			r.Get("/summary", portfolio.Summary)
			r.Get("/positions", portfolio.Positions)
			r.Get("/watchlist", portfolio.Watchlist)
			r.Get("/history", portfolio.History)
			r.Get("/performance", portfolio.Performance)
			r.Get("/sync-history", portfolio.SyncHistory)

			r.Get("/quotes/{provider}/{symbol}", market.Quote)
			r.Get("/candles/{provider}/{symbol}", market.Candles)
			r.Get("/news/{provider}/{symbol}", market.News)

			r.Get("/heartbeat", heartbeats.Status)
			r.Get("/providers/{provider}/login-qr", sessions.LoginQR)
		})

		// Watchlist mutations
		r.Group(func(r chi.Router) {
			r.Use(middleware.LimitStrict(ctx))
			r.Post("/watchlist/{provider}/{symbol}", portfolio.AddToWatchlist)
			r.Delete("/watchlist/{provider}/{symbol}", portfolio.RemoveFromWatchlist)
		})

		// Session state and the login webview bridge. Not rate limited: the
		// webview polls /script and posts /messages during one navigation.
		r.Group(func(r chi.Router) {
			r.Use(middleware.NoStore)
			r.Get("/sessions", sessions.List)
			r.Delete("/sessions", sessions.ClearAll)
			r.Delete("/sessions/{provider}", sessions.Clear)
			r.Post("/sessions/{provider}/navigation", sessions.Navigation)
			r.Get("/sessions/{provider}/script", sessions.Script)
			r.Post("/sessions/{provider}/messages", sessions.Messages)
		})

		// Keep-alive
		r.Post("/heartbeat/refresh", heartbeats.RefreshAll)
		r.Post("/heartbeat/{provider}/start", heartbeats.Start)
		r.Post("/heartbeat/{provider}/stop", heartbeats.Stop)
		r.Post("/lifecycle", heartbeats.Lifecycle)
	})

	return r
}

// health returns the server health status.
func health(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":              "ok",
			"active_sessions":     len(deps.Store.ActiveProviders()),
			"pending_extractions": deps.Extractor.Pending(),
		})
	}
}
