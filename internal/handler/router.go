/*
Package handler provides the HTTP handlers and routing setup for the HiChat server.

This file defines the main Router, applying middleware like logging, CORS,
and IP-based rate limiting before delegating requests to the API and WebSocket handlers.
*/
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"hichat/internal/pkg/auth/jwt"
	"hichat/internal/pkg/errs"
	"hichat/internal/pkg/limiter"
	"hichat/internal/pkg/logx"
	"hichat/internal/pkg/resp"
)

const (
	AuthRate     = 0.2
	AuthBurst    = 5
	OrderRate    = 0.5
	OrderBurst   = 5
	ExportRate   = 0.02
	ExportBurst  = 2
	ConnectRate  = 1
	ConnectBurst = 10

	healthTimeout = 2 * time.Second
)

// Router sets up the main HTTP routing table for the application.
// Rate limiter cleanup goroutines stop when ctx is cancelled.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	authLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(AuthRate), AuthBurst)
	orderLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(OrderRate), OrderBurst)
	exportLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(ExportRate), ExportBurst)
	connectLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(ConnectRate), ConnectBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-PoW-Token"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", HandleHealth(deps))

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.Route("/pow", func(p chi.Router) {
			p.Use(authLimiter.Middleware)
			p.Get("/challenge", HandlePowChallenge(deps))
			p.Post("/verify", HandlePowVerify(deps))
		})

		api.Group(func(public chi.Router) {
			public.Use(authLimiter.Middleware)
			public.Post("/register", HandleRegister(deps))
			public.Post("/login", HandleLogin(deps))
		})

		api.Group(func(private chi.Router) {
			private.Use(jwt.RequireIdentity)

			private.Get("/me", HandleMe(deps))

			private.Route("/orders", func(orders chi.Router) {
				orders.With(orderLimiter.Middleware).Post("/", HandleCreateOrder(deps))
				orders.Get("/", HandleListOrders(deps))
			})

			private.With(exportLimiter.Middleware).Post("/history/export", HandleExportHistory(deps))
		})
	})

	r.Get("/ws", HandleWebSocket(wsUpgrader, connectLimiter, deps))

	return r
}

// HandleHealth reports store connectivity and the number of connected sessions.
func HandleHealth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := deps.Store.Ping(ctx); err != nil {
			logx.Warn("Health check failed: store unreachable.", "backend", deps.Config.StoreBackend)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		data := map[string]any{
			"status":  "ok",
			"service": "HiChat Server",
			"backend": deps.Config.StoreBackend,
			"online":  deps.Chat.Hub().Online(),
		}
		resp.RespondSuccess(w, r, data)
	}
}
