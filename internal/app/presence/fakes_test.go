package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"realchat/internal/app/chat"
)

var errBoom = errors.New("boom")

type fakeDirectory struct {
	mu        sync.Mutex
	users     map[string]bool
	failWrite bool
	failRead  bool
	calls     []string
}

func newFakeDirectory(usernames ...string) *fakeDirectory {
	d := &fakeDirectory{users: make(map[string]bool)}
	for _, u := range usernames {
		d.users[u] = false
	}
	return d
}

func (d *fakeDirectory) Exists(_ context.Context, username string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failRead {
		return false, errBoom
	}
	_, ok := d.users[username]
	return ok, nil
}

func (d *fakeDirectory) IsOnline(_ context.Context, username string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failRead {
		return false, errBoom
	}
	return d.users[username], nil
}

func (d *fakeDirectory) SetOnline(_ context.Context, username string, online bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, fmt.Sprintf("%s=%t", username, online))
	if d.failWrite {
		return errBoom
	}
	if _, ok := d.users[username]; ok {
		d.users[username] = online
	}
	return nil
}

func (d *fakeDirectory) SetAllOffline(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWrite {
		return errBoom
	}
	for u := range d.users {
		d.users[u] = false
	}
	return nil
}

func (d *fakeDirectory) online(username string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.users[username]
}

type fakeStore struct {
	mu    sync.Mutex
	saved []chat.Message
	fail  bool
}

func (s *fakeStore) Save(_ context.Context, msg chat.Message) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return chat.Message{}, errBoom
	}
	msg.ID = fmt.Sprintf("m%d", len(s.saved)+1)
	s.saved = append(s.saved, msg)
	return msg, nil
}

func (s *fakeStore) messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Message(nil), s.saved...)
}

type published struct {
	Destination string
	Message     chat.Message
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	fail bool
}

func (p *fakePublisher) Publish(_ context.Context, destination string, msg chat.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errBoom
	}
	p.sent = append(p.sent, published{Destination: destination, Message: msg})
	return nil
}

func (p *fakePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.sent...)
}

type attrRecorder map[string]string

func (a attrRecorder) SetAttribute(key, value string) { a[key] = value }

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type fixture struct {
	registry  *Registry
	users     *fakeDirectory
	store     *fakeStore
	publisher *fakePublisher
	deps      Deps
}

func newFixture(t *testing.T, usernames ...string) *fixture {
	t.Helper()
	f := &fixture{
		registry:  NewRegistry(),
		users:     newFakeDirectory(usernames...),
		store:     &fakeStore{},
		publisher: &fakePublisher{},
	}
	f.deps = Deps{
		Registry:  f.registry,
		Users:     f.users,
		Store:     f.store,
		Publisher: f.publisher,
		Now:       func() time.Time { return fixedNow },
	}
	return f
}

func joinRequest(username, sessionID, connID string) JoinRequest {
	return JoinRequest{
		Message: chat.Message{Sender: username, Content: chat.SessionMarker + sessionID},
		ConnID:  connID,
	}
}
