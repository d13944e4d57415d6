package store

import (
	"context"

	"github.com/google/uuid"
)

// MembershipStore resolves who belongs to a workspace or focus session.
// Fan-out logic depends on this interface alone; it never reads workspace
// or session tables directly.
type MembershipStore interface {
	// WorkspaceMemberIDs returns the user IDs of everyone in the workspace:
	// the owner plus all members, deduplicated.
	// Returns ErrWorkspaceNotFound if the workspace does not exist.
	WorkspaceMemberIDs(ctx context.Context, workspaceID uuid.UUID) ([]uuid.UUID, error)

	// IsWorkspaceMember reports whether the user is the workspace's owner or
	// a member. Returns ErrWorkspaceNotFound if the workspace does not exist.
	IsWorkspaceMember(ctx context.Context, workspaceID, userID uuid.UUID) (bool, error)

	// SessionParticipantIDs returns the user IDs of all participants in a
	// focus session, including its host.
	// Returns ErrSessionNotFound if the session does not exist.
	SessionParticipantIDs(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error)

	// IsSessionParticipant reports whether the user hosts or participates in
	// the focus session. Returns ErrSessionNotFound if the session does not
	// exist.
	IsSessionParticipant(ctx context.Context, sessionID, userID uuid.UUID) (bool, error)
}
