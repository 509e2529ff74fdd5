package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"hichat/internal/pkg/errs"
	"hichat/internal/pkg/limiter"
	"hichat/internal/pkg/logx"
	"hichat/internal/pkg/resp"
)

// HandleWebSocket upgrades the request and hands the connection to the chat manager.
// The handler blocks for the lifetime of the session.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written an HTTP error response.
			logx.Warn("Failed to upgrade connection to WebSocket", "error", err)
			return
		}

		deps.Chat.Attach(conn)
	}
}
