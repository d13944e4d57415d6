package ws

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/onetask/onetask-api/internal/domain"
	"github.com/onetask/onetask-api/internal/store"
)

// newTestConn builds a registry-ready connection without a transport.
// Payloads land in the send channel where tests can read them.
func newTestConn(userID uuid.UUID, scope Scope, buffer int) *Conn {
	id := uuid.New()
	return &Conn{
		id:       id,
		userID:   userID,
		scope:    scope,
		openedAt: time.Now().UTC(),
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
		logger:   slog.Default(),
	}
}

// received drains one payload from the connection, or returns nil if none is
// pending.
func received(c *Conn) []byte {
	select {
	case payload := <-c.send:
		return payload
	default:
		return nil
	}
}

// fakeNotificationStore is an in-memory store.NotificationStore.
type fakeNotificationStore struct {
	mu        sync.Mutex
	rows      []*domain.Notification
	createErr error
}

var _ store.NotificationStore = (*fakeNotificationStore)(nil)

func (f *fakeNotificationStore) Create(ctx context.Context, n *domain.Notification) error {
	return f.CreateBatch(ctx, []*domain.Notification{n})
}

func (f *fakeNotificationStore) CreateBatch(
	ctx context.Context,
	notifications []*domain.Notification,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.rows = append(f.rows, notifications...)
	return nil
}

func (f *fakeNotificationStore) GetByID(
	ctx context.Context,
	id uuid.UUID,
) (*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.rows {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, store.ErrNotificationNotFound
}

func (f *fakeNotificationStore) ListByUser(
	ctx context.Context,
	userID uuid.UUID,
	opts store.ListOptions,
) ([]*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*domain.Notification{}
	for _, n := range f.rows {
		if n.UserID != userID {
			continue
		}
		if opts.UnreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeNotificationStore) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.rows {
		if n.ID == notificationID && n.UserID == userID {
			n.MarkRead(time.Now().UTC())
			return nil
		}
	}
	return store.ErrNotificationNotFound
}

func (f *fakeNotificationStore) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, n := range f.rows {
		if n.UserID == userID && !n.Read {
			n.MarkRead(time.Now().UTC())
			count++
		}
	}
	return count, nil
}

func (f *fakeNotificationStore) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, n := range f.rows {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (f *fakeNotificationStore) WithTx(tx *sql.Tx) store.NotificationStore {
	return f
}

// rowsForUser returns the persisted notifications for a user.
func (f *fakeNotificationStore) rowsForUser(userID uuid.UUID) []*domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*domain.Notification{}
	for _, n := range f.rows {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeNotificationStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// fakeMembershipStore is an in-memory store.MembershipStore.
type fakeMembershipStore struct {
	workspaces map[uuid.UUID][]uuid.UUID
	sessions   map[uuid.UUID][]uuid.UUID
	resolveErr error
}

var _ store.MembershipStore = (*fakeMembershipStore)(nil)

func (f *fakeMembershipStore) WorkspaceMemberIDs(
	ctx context.Context,
	workspaceID uuid.UUID,
) ([]uuid.UUID, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	members, ok := f.workspaces[workspaceID]
	if !ok {
		return nil, store.ErrWorkspaceNotFound
	}
	return members, nil
}

func (f *fakeMembershipStore) IsWorkspaceMember(
	ctx context.Context,
	workspaceID, userID uuid.UUID,
) (bool, error) {
	members, err := f.WorkspaceMemberIDs(ctx, workspaceID)
	if err != nil {
		return false, err
	}
	for _, id := range members {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMembershipStore) SessionParticipantIDs(
	ctx context.Context,
	sessionID uuid.UUID,
) ([]uuid.UUID, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	participants, ok := f.sessions[sessionID]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	return participants, nil
}

func (f *fakeMembershipStore) IsSessionParticipant(
	ctx context.Context,
	sessionID, userID uuid.UUID,
) (bool, error) {
	participants, err := f.SessionParticipantIDs(ctx, sessionID)
	if err != nil {
		return false, err
	}
	for _, id := range participants {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// newTestRegistry returns a registry with no per-user limit.
func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(0, slog.Default())
}
