package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/onetask/onetask-api/internal/domain"
	"github.com/onetask/onetask-api/internal/platform/logger"
	"github.com/onetask/onetask-api/internal/store"
)

// defaultListLimit caps ListByUser when the caller does not ask for a limit.
const defaultListLimit = 50

// PostgresNotificationStore implements the store.NotificationStore interface
// using a PostgreSQL database as the storage backend.
type PostgresNotificationStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresNotificationStore creates a new PostgreSQL implementation of the
// NotificationStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresNotificationStore(db store.DBTX, logger *slog.Logger) *PostgresNotificationStore {
	// Validate inputs
	if db == nil {
		panic("db cannot be nil")
	}

	// Use provided logger or create default
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresNotificationStore{
		db:     db,
		logger: logger.With(slog.String("component", "notification_store")),
	}
}

// Ensure PostgresNotificationStore implements store.NotificationStore interface
var _ store.NotificationStore = (*PostgresNotificationStore)(nil)

// Create implements store.NotificationStore.Create
// It saves a new notification to the database, handling domain validation.
// Returns store.ErrInvalidEntity if the recipient doesn't exist (foreign key violation).
func (s *PostgresNotificationStore) Create(ctx context.Context, n *domain.Notification) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := n.Validate(); err != nil {
		log.Warn("notification validation failed during create",
			slog.String("error", err.Error()),
			slog.String("notification_id", n.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO notifications
			(id, user_id, type, title, content, related_entity_type, related_entity_id, data, read, created_at, read_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		n.ID,
		n.UserID,
		n.Type,
		n.Title,
		n.Content,
		nullableString(n.RelatedEntityType),
		n.RelatedEntityID,
		nullableJSON(n.Data),
		n.Read,
		n.CreatedAt,
		n.ReadAt,
	)

	if err != nil {
		if IsForeignKeyViolation(err) {
			log.Warn("foreign key violation during notification creation",
				slog.String("error", err.Error()),
				slog.String("notification_id", n.ID.String()),
				slog.String("user_id", n.UserID.String()))
			return fmt.Errorf("%w: user with ID %s not found",
				store.ErrInvalidEntity, n.UserID)
		}

		log.Error("failed to create notification",
			slog.String("error", err.Error()),
			slog.String("notification_id", n.ID.String()),
			slog.String("user_id", n.UserID.String()))
		return MapError(err)
	}

	log.Debug("notification created",
		slog.String("notification_id", n.ID.String()),
		slog.String("user_id", n.UserID.String()),
		slog.String("type", string(n.Type)))
	return nil
}

// CreateBatch implements store.NotificationStore.CreateBatch
// It inserts all notifications with a single multi-row INSERT so fan-out writes
// stay atomic when wrapped in a transaction. An empty slice is a no-op.
func (s *PostgresNotificationStore) CreateBatch(
	ctx context.Context,
	notifications []*domain.Notification,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if len(notifications) == 0 {
		return nil
	}

	for _, n := range notifications {
		if err := n.Validate(); err != nil {
			log.Warn("notification validation failed during batch create",
				slog.String("error", err.Error()),
				slog.String("notification_id", n.ID.String()))
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
	}

	const columns = 11
	placeholders := make([]string, 0, len(notifications))
	args := make([]any, 0, len(notifications)*columns)
	for i, n := range notifications {
		base := i * columns
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
			base+7, base+8, base+9, base+10, base+11,
		))
		args = append(args,
			n.ID,
			n.UserID,
			n.Type,
			n.Title,
			n.Content,
			nullableString(n.RelatedEntityType),
			n.RelatedEntityID,
			nullableJSON(n.Data),
			n.Read,
			n.CreatedAt,
			n.ReadAt,
		)
	}

	query := `
		INSERT INTO notifications
			(id, user_id, type, title, content, related_entity_type, related_entity_id, data, read, created_at, read_at)
		VALUES ` + strings.Join(placeholders, ", ")

	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to batch create notifications",
			slog.String("error", err.Error()),
			slog.Int("count", len(notifications)))
		return MapError(err)
	}

	log.Debug("notifications batch created",
		slog.Int("count", len(notifications)))
	return nil
}

// GetByID implements store.NotificationStore.GetByID
// Returns store.ErrNotificationNotFound if the notification does not exist.
func (s *PostgresNotificationStore) GetByID(
	ctx context.Context,
	id uuid.UUID,
) (*domain.Notification, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, user_id, type, title, content, related_entity_type, related_entity_id, data, read, created_at, read_at
		FROM notifications
		WHERE id = $1
	`

	n, err := scanNotification(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("notification not found", slog.String("notification_id", id.String()))
			return nil, store.ErrNotificationNotFound
		}
		log.Error("failed to get notification by ID",
			slog.String("error", err.Error()),
			slog.String("notification_id", id.String()))
		return nil, MapError(err)
	}

	return n, nil
}

// ListByUser implements store.NotificationStore.ListByUser
// It retrieves a user's notifications newest first, optionally unread only.
// Returns an empty slice if no notifications match.
func (s *PostgresNotificationStore) ListByUser(
	ctx context.Context,
	userID uuid.UUID,
	opts store.ListOptions,
) ([]*domain.Notification, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, user_id, type, title, content, related_entity_type, related_entity_id, data, read, created_at, read_at
		FROM notifications
		WHERE user_id = $1
	`
	args := []any{userID}
	if opts.UnreadOnly {
		query += ` AND read = FALSE`
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list notifications",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, MapError(err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	notifications := []*domain.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			log.Error("failed to scan notification row",
				slog.String("error", err.Error()))
			return nil, err
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		log.Error("error after scanning rows",
			slog.String("error", err.Error()))
		return nil, err
	}

	log.Debug("listed notifications",
		slog.String("user_id", userID.String()),
		slog.Int("count", len(notifications)))
	return notifications, nil
}

// MarkRead implements store.NotificationStore.MarkRead
// The update is scoped to the owning user, so a notification belonging to a
// different user reads as not found rather than leaking its existence.
// Returns store.ErrNotificationNotFound if no matching row exists.
func (s *PostgresNotificationStore) MarkRead(
	ctx context.Context,
	userID, notificationID uuid.UUID,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE notifications
		SET read = TRUE, read_at = COALESCE(read_at, $1)
		WHERE id = $2 AND user_id = $3
	`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), notificationID, userID)
	if err != nil {
		log.Error("failed to mark notification read",
			slog.String("error", err.Error()),
			slog.String("notification_id", notificationID.String()),
			slog.String("user_id", userID.String()))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, store.ErrNotificationNotFound); err != nil {
		if store.IsNotFoundError(err) {
			log.Debug("notification not found for mark read",
				slog.String("notification_id", notificationID.String()),
				slog.String("user_id", userID.String()))
		} else {
			log.Error("failed to get rows affected",
				slog.String("error", err.Error()),
				slog.String("notification_id", notificationID.String()))
		}
		return err
	}

	return nil
}

// MarkAllRead implements store.NotificationStore.MarkAllRead
// It marks every unread notification for the user as read and returns the
// number of rows affected.
func (s *PostgresNotificationStore) MarkAllRead(
	ctx context.Context,
	userID uuid.UUID,
) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE notifications
		SET read = TRUE, read_at = $1
		WHERE user_id = $2 AND read = FALSE
	`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), userID)
	if err != nil {
		log.Error("failed to mark all notifications read",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return 0, MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Error("failed to get rows affected",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return 0, err
	}

	log.Debug("marked all notifications read",
		slog.String("user_id", userID.String()),
		slog.Int64("count", rowsAffected))
	return rowsAffected, nil
}

// CountUnread implements store.NotificationStore.CountUnread
func (s *PostgresNotificationStore) CountUnread(
	ctx context.Context,
	userID uuid.UUID,
) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE user_id = $1 AND read = FALSE
	`

	var count int64
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		log.Error("failed to count unread notifications",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return 0, MapError(err)
	}

	return count, nil
}

// WithTx implements store.NotificationStore.WithTx
// It returns a new NotificationStore that uses the provided transaction.
func (s *PostgresNotificationStore) WithTx(tx *sql.Tx) store.NotificationStore {
	return &PostgresNotificationStore{
		db:     tx,
		logger: s.logger,
	}
}

// rowScanner matches both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanNotification scans one notification row, converting nullable columns.
func scanNotification(row rowScanner) (*domain.Notification, error) {
	var n domain.Notification
	var relatedType sql.NullString
	var data []byte

	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Type,
		&n.Title,
		&n.Content,
		&relatedType,
		&n.RelatedEntityID,
		&data,
		&n.Read,
		&n.CreatedAt,
		&n.ReadAt,
	)
	if err != nil {
		return nil, err
	}

	if relatedType.Valid {
		n.RelatedEntityType = relatedType.String
	}
	if len(data) > 0 {
		n.Data = data
	}

	return &n, nil
}

// nullableString converts an empty string to NULL for storage.
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullableJSON converts an empty payload to NULL for a JSONB column.
func nullableJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return data
}
