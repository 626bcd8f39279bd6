package handler

import (
	"net/http"
	"strconv"

	"realchat/internal/pkg/errs"
	"realchat/internal/pkg/logx"
	"realchat/internal/pkg/resp"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HandleOnlineUsers lists the users the registry currently sees online.
func HandleOnlineUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"users": deps.Registry.OnlineUsers(),
		})
	}
}

// HandleRecentMessages returns the newest persisted messages, oldest first.
// The optional limit query parameter is capped at maxHistoryLimit.
func HandleRecentMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
				return
			}
			limit = min(n, maxHistoryLimit)
		}

		msgs, err := deps.History.Recent(r.Context(), limit)
		if err != nil {
			logx.Error(err, "Reading message history failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrStorageUnavailable))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"messages": msgs})
	}
}
