package db

import (
	"context"
	"fmt"
	"slices"

	"realchat/internal/app/chat"
	"realchat/internal/pkg/randx"
)

// MessageRepository is the SQL-backed chat.MessageStore.
type MessageRepository struct {
	store *Store
}

var _ chat.MessageStore = (*MessageRepository)(nil)

// NewMessageRepository constructs a MessageRepository over store.
func NewMessageRepository(store *Store) *MessageRepository {
	return &MessageRepository{store: store}
}

// Save inserts msg, assigning a new id, and returns the stored message.
func (r *MessageRepository) Save(ctx context.Context, msg chat.Message) (chat.Message, error) {
	msg.ID = randx.MessageID()
	msg.Type = msg.Kind()

	_, err := r.store.db.ExecContext(ctx,
		r.store.rebind(`INSERT INTO chat_messages (id, type, sender, recipient, content, sent_at) VALUES (?, ?, ?, ?, ?, ?)`),
		msg.ID, string(msg.Type), msg.Sender, msg.Recipient, msg.Content, msg.Timestamp,
	)
	if err != nil {
		return chat.Message{}, fmt.Errorf("insert %s message from %s: %w", msg.Type, msg.Sender, err)
	}
	return msg, nil
}

// Recent returns up to limit of the newest messages, oldest first.
func (r *MessageRepository) Recent(ctx context.Context, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := r.store.db.QueryContext(ctx,
		r.store.rebind(`SELECT id, type, sender, recipient, content, sent_at FROM chat_messages ORDER BY sent_at DESC, id DESC LIMIT ?`),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var (
			m    chat.Message
			kind string
		)
		if err := rows.Scan(&m.ID, &kind, &m.Sender, &m.Recipient, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Type = chat.MessageType(kind)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	slices.Reverse(msgs)
	return msgs, nil
}
