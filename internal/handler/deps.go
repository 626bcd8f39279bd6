package handler

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"realchat/internal/app/chat"
	"realchat/internal/app/presence"
	"realchat/internal/app/user"
	"realchat/internal/configs"
)

// UserCreator adds users to the directory. *db.UserRepository implements it.
type UserCreator interface {
	Create(ctx context.Context, username string) (user.User, error)
}

// HistoryReader reads the persisted message log. *db.MessageRepository implements it.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]chat.Message, error)
}

// AppDeps carries everything the HTTP layer needs.
type AppDeps struct {
	Config *configs.AppConfig

	Hub       *chat.Hub
	Registry  *presence.Registry
	Lifecycle *presence.Lifecycle
	Admission *presence.Admission
	Admin     *presence.Admin
	Messenger *chat.Messenger

	Users   UserCreator
	History HistoryReader

	// Gatherer serves /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}
