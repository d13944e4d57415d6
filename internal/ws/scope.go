package ws

import (
	"fmt"

	"github.com/google/uuid"
)

// ScopeKind is the routing dimension a connection is opened under.
type ScopeKind string

const (
	// ScopePersonal routes only by the owning user's ID.
	ScopePersonal ScopeKind = "personal"

	// ScopeWorkspace additionally routes by a workspace key, so events
	// broadcast to the workspace reach the connection directly.
	ScopeWorkspace ScopeKind = "workspace"

	// ScopeSession additionally routes by a focus session key.
	ScopeSession ScopeKind = "session"
)

// Scope identifies the routing scope of a single connection.
// A workspace- or session-scoped connection is discoverable under both its
// owner's personal key and its scope key; a personal connection only under
// the former.
type Scope struct {
	Kind ScopeKind
	ID   uuid.UUID // workspace or session ID; unused for personal scope
}

// PersonalScope returns the scope for a plain notification connection.
func PersonalScope() Scope {
	return Scope{Kind: ScopePersonal}
}

// WorkspaceScope returns the scope for a workspace-bound connection.
func WorkspaceScope(workspaceID uuid.UUID) Scope {
	return Scope{Kind: ScopeWorkspace, ID: workspaceID}
}

// SessionScope returns the scope for a focus-session-bound connection.
func SessionScope(sessionID uuid.UUID) Scope {
	return Scope{Kind: ScopeSession, ID: sessionID}
}

// Key returns the registry routing key for the scope, or "" for personal
// scope, which has no key beyond the owner's user ID.
func (s Scope) Key() string {
	switch s.Kind {
	case ScopeWorkspace:
		return fmt.Sprintf("workspace:%s", s.ID)
	case ScopeSession:
		return fmt.Sprintf("session:%s", s.ID)
	default:
		return ""
	}
}

// WorkspaceKey returns the routing key events use to reach connections
// opened in the given workspace's scope.
func WorkspaceKey(workspaceID uuid.UUID) string {
	return WorkspaceScope(workspaceID).Key()
}

// SessionKey returns the routing key events use to reach connections opened
// in the given session's scope.
func SessionKey(sessionID uuid.UUID) string {
	return SessionScope(sessionID).Key()
}
