package postgres

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/onetask/onetask-api/internal/platform/logger"
	"github.com/onetask/onetask-api/internal/store"
)

// PostgresMembershipStore implements the store.MembershipStore interface
// using a PostgreSQL database as the storage backend.
type PostgresMembershipStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresMembershipStore creates a new PostgreSQL implementation of the
// MembershipStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresMembershipStore(db store.DBTX, logger *slog.Logger) *PostgresMembershipStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresMembershipStore{
		db:     db,
		logger: logger.With(slog.String("component", "membership_store")),
	}
}

// Ensure PostgresMembershipStore implements store.MembershipStore interface
var _ store.MembershipStore = (*PostgresMembershipStore)(nil)

// WorkspaceMemberIDs implements store.MembershipStore.WorkspaceMemberIDs
// The recipient set is the owner plus every member, deduplicated; the UNION
// handles an owner who also appears in the members table.
// Returns store.ErrWorkspaceNotFound if the workspace does not exist.
func (s *PostgresMembershipStore) WorkspaceMemberIDs(
	ctx context.Context,
	workspaceID uuid.UUID,
) ([]uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := s.checkWorkspaceExists(ctx, workspaceID); err != nil {
		return nil, err
	}

	query := `
		SELECT owner_id FROM workspaces WHERE id = $1
		UNION
		SELECT user_id FROM workspace_members WHERE workspace_id = $1
	`

	ids, err := s.queryUserIDs(ctx, query, workspaceID)
	if err != nil {
		log.Error("failed to resolve workspace members",
			slog.String("error", err.Error()),
			slog.String("workspace_id", workspaceID.String()))
		return nil, MapError(err)
	}

	log.Debug("resolved workspace members",
		slog.String("workspace_id", workspaceID.String()),
		slog.Int("count", len(ids)))
	return ids, nil
}

// IsWorkspaceMember implements store.MembershipStore.IsWorkspaceMember
// The owner counts as a member.
// Returns store.ErrWorkspaceNotFound if the workspace does not exist.
func (s *PostgresMembershipStore) IsWorkspaceMember(
	ctx context.Context,
	workspaceID, userID uuid.UUID,
) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := s.checkWorkspaceExists(ctx, workspaceID); err != nil {
		return false, err
	}

	query := `
		SELECT EXISTS (
			SELECT 1 FROM workspaces WHERE id = $1 AND owner_id = $2
			UNION
			SELECT 1 FROM workspace_members WHERE workspace_id = $1 AND user_id = $2
		)
	`

	var member bool
	if err := s.db.QueryRowContext(ctx, query, workspaceID, userID).Scan(&member); err != nil {
		log.Error("failed to check workspace membership",
			slog.String("error", err.Error()),
			slog.String("workspace_id", workspaceID.String()),
			slog.String("user_id", userID.String()))
		return false, MapError(err)
	}

	return member, nil
}

// SessionParticipantIDs implements store.MembershipStore.SessionParticipantIDs
// The host counts as a participant.
// Returns store.ErrSessionNotFound if the session does not exist.
func (s *PostgresMembershipStore) SessionParticipantIDs(
	ctx context.Context,
	sessionID uuid.UUID,
) ([]uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := s.checkSessionExists(ctx, sessionID); err != nil {
		return nil, err
	}

	query := `
		SELECT host_id FROM focus_sessions WHERE id = $1
		UNION
		SELECT user_id FROM focus_session_participants WHERE session_id = $1
	`

	ids, err := s.queryUserIDs(ctx, query, sessionID)
	if err != nil {
		log.Error("failed to resolve session participants",
			slog.String("error", err.Error()),
			slog.String("session_id", sessionID.String()))
		return nil, MapError(err)
	}

	log.Debug("resolved session participants",
		slog.String("session_id", sessionID.String()),
		slog.Int("count", len(ids)))
	return ids, nil
}

// IsSessionParticipant implements store.MembershipStore.IsSessionParticipant
// Returns store.ErrSessionNotFound if the session does not exist.
func (s *PostgresMembershipStore) IsSessionParticipant(
	ctx context.Context,
	sessionID, userID uuid.UUID,
) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := s.checkSessionExists(ctx, sessionID); err != nil {
		return false, err
	}

	query := `
		SELECT EXISTS (
			SELECT 1 FROM focus_sessions WHERE id = $1 AND host_id = $2
			UNION
			SELECT 1 FROM focus_session_participants WHERE session_id = $1 AND user_id = $2
		)
	`

	var participant bool
	if err := s.db.QueryRowContext(ctx, query, sessionID, userID).Scan(&participant); err != nil {
		log.Error("failed to check session participation",
			slog.String("error", err.Error()),
			slog.String("session_id", sessionID.String()),
			slog.String("user_id", userID.String()))
		return false, MapError(err)
	}

	return participant, nil
}

// checkWorkspaceExists returns store.ErrWorkspaceNotFound for unknown workspaces.
func (s *PostgresMembershipStore) checkWorkspaceExists(
	ctx context.Context,
	workspaceID uuid.UUID,
) error {
	var exists bool
	err := s.db.QueryRowContext(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM workspaces WHERE id = $1)`,
		workspaceID,
	).Scan(&exists)
	if err != nil {
		return MapError(err)
	}
	if !exists {
		return store.ErrWorkspaceNotFound
	}
	return nil
}

// checkSessionExists returns store.ErrSessionNotFound for unknown sessions.
func (s *PostgresMembershipStore) checkSessionExists(
	ctx context.Context,
	sessionID uuid.UUID,
) error {
	var exists bool
	err := s.db.QueryRowContext(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM focus_sessions WHERE id = $1)`,
		sessionID,
	).Scan(&exists)
	if err != nil {
		return MapError(err)
	}
	if !exists {
		return store.ErrSessionNotFound
	}
	return nil
}

// queryUserIDs runs a query whose result set is a single uuid column.
func (s *PostgresMembershipStore) queryUserIDs(
	ctx context.Context,
	query string,
	args ...any,
) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}
