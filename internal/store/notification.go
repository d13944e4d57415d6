package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/onetask/onetask-api/internal/domain"
)

// ListOptions controls pagination and filtering for notification listings.
type ListOptions struct {
	// UnreadOnly restricts results to notifications that have not been read.
	UnreadOnly bool

	// Limit caps the number of returned notifications. Zero or negative
	// values fall back to the implementation's default page size.
	Limit int

	// Offset skips the given number of notifications, newest first.
	Offset int
}

// NotificationStore defines the interface for notification persistence.
type NotificationStore interface {
	// Create saves a new notification to the store.
	// The notification must be valid according to domain validation rules.
	// Returns ErrInvalidEntity wrapping the validation error if it is not.
	Create(ctx context.Context, notification *domain.Notification) error

	// CreateBatch saves one notification per recipient in a single statement.
	// IMPORTANT: run this within a transaction via WithTx and
	// store.RunInTransaction when the batch must be atomic with other writes.
	// An empty slice is a no-op.
	CreateBatch(ctx context.Context, notifications []*domain.Notification) error

	// GetByID retrieves a notification by its unique ID.
	// Returns ErrNotificationNotFound if the notification does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error)

	// ListByUser retrieves a user's notifications, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]*domain.Notification, error)

	// MarkRead marks a single notification as read, scoped to the owning
	// user so one user cannot mark another's notifications.
	// Returns ErrNotificationNotFound if no matching row exists.
	// Marking an already-read notification succeeds without changing read_at.
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error

	// MarkAllRead marks all of a user's unread notifications as read and
	// returns the number of rows affected.
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)

	// CountUnread returns the number of unread notifications for a user.
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)

	// WithTx returns a new NotificationStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller,
	// typically through store.RunInTransaction.
	WithTx(tx *sql.Tx) NotificationStore
}
