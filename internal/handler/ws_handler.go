package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"realchat/internal/app/chat"
	"realchat/internal/pkg/errs"
	"realchat/internal/pkg/limiter"
	"realchat/internal/pkg/logx"
	"realchat/internal/pkg/randx"
	"realchat/internal/pkg/resp"
)

// HandleWebSocket upgrades the connection and runs the client until it disconnects.
// The connection is unregistered until the client sends a join frame.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	dispatcher := NewDispatcher(deps)

	return func(w http.ResponseWriter, r *http.Request) {
		if !rateLimiter.Allow(r) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", limiter.ClientIP(r))
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		connID, err := randx.ConnectionID()
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := chat.NewClient(connID, deps.Hub, conn, dispatcher)

		// The request context ends when this handler returns; disconnect
		// side effects must still run after that.
		client.Start(context.WithoutCancel(r.Context()))
	}
}
