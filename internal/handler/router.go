/*
Package handler provides the HTTP routing and handlers of the chat gateway.

This file defines the main Router, applying middleware like logging, CORS,
and IP-based rate limiting before delegating to the websocket endpoint, the
public read API and the debug surface.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"realchat/internal/pkg/auth/jwt"
	"realchat/internal/pkg/limiter"
	"realchat/internal/pkg/logx"
	"realchat/internal/pkg/resp"
)

// Router sets up the routing table. The returned stop function ends the
// background goroutines owned by the router's rate limiters.
func Router(deps *AppDeps) (http.Handler, func()) {
	wsLimiter := limiter.NewIPRateLimiter(rate.Limit(deps.Config.WSConnectRate), deps.Config.WSConnectBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"status":  "ok",
			"service": "RealChat Gateway",
			"clients": deps.Hub.Count(),
		})
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/users/online", HandleOnlineUsers(deps))
		api.Get("/messages/recent", HandleRecentMessages(deps))
	})

	r.Route("/debug", func(debug chi.Router) {
		if !deps.Config.IsDevelopment() {
			debug.Use(jwt.RequireAdmin(deps.Config.JWTSecret))
		}

		debug.Get("/sessions/{username}", HandleSessionStatus(deps))
		debug.Post("/cleanup/{username}", HandleForceCleanup(deps))
		debug.Post("/reset-all-users", HandleResetAllUsers(deps))
		debug.Get("/log-all-sessions", HandleLogAllSessions(deps))
		debug.Post("/users", HandleCreateUser(deps))
	})

	r.Get("/ws", HandleWebSocket(wsUpgrader, wsLimiter, deps))

	return r, wsLimiter.Stop
}
