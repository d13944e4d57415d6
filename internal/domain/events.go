package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

// TaskAction is the kind of change a task event describes.
type TaskAction string

// Task actions carried by TaskEvent.
const (
	TaskActionCreated   TaskAction = "created"
	TaskActionUpdated   TaskAction = "updated"
	TaskActionCompleted TaskAction = "completed"
	TaskActionDeleted   TaskAction = "deleted"
)

// validTaskActions is the set of actions accepted by TaskEvent.Validate.
var validTaskActions = map[TaskAction]bool{
	TaskActionCreated:   true,
	TaskActionUpdated:   true,
	TaskActionCompleted: true,
	TaskActionDeleted:   true,
}

// Events are immutable, typed facts produced exactly once by business logic
// per real occurrence. Each variant is its own struct with its own wire
// serializer rather than a dynamically built map, so the compiler checks the
// payload shape at every publish site.

// TaskEvent describes a change to a single task.
// TargetUserIDs names the recipients; when empty the actor is the sole
// recipient (a personal task has no one else to tell).
type TaskEvent struct {
	TaskID        uuid.UUID
	Title         string
	Action        TaskAction
	WorkspaceID   *uuid.UUID
	ActorID       uuid.UUID
	TargetUserIDs []uuid.UUID
}

// Validate checks the event's required fields.
func (e *TaskEvent) Validate() error {
	if e.TaskID == uuid.Nil {
		return ErrInvalidID
	}
	if e.ActorID == uuid.Nil {
		return ErrInvalidID
	}
	if !validTaskActions[e.Action] {
		return ErrInvalidTaskAction
	}
	return nil
}

// WorkspaceBroadcast announces something to every member of a workspace.
// The actor is a canonical member of the recipient set: they keep their
// persisted notification row unless listed in ExcludeUserIDs, but never
// receive the live rebroadcast of their own action.
type WorkspaceBroadcast struct {
	WorkspaceID       uuid.UUID
	Title             string
	Content           string
	RelatedEntityType string
	RelatedEntityID   *uuid.UUID
	Data              json.RawMessage
	ActorID           uuid.UUID
	ExcludeUserIDs    []uuid.UUID
}

// Validate checks the event's required fields.
func (e *WorkspaceBroadcast) Validate() error {
	if e.WorkspaceID == uuid.Nil {
		return ErrInvalidID
	}
	if e.Title == "" {
		return ErrNotificationTitleEmpty
	}
	return nil
}

// SystemNotice targets a single user with an operator- or system-generated
// message.
type SystemNotice struct {
	TargetUserID uuid.UUID
	Title        string
	Content      string
	Data         json.RawMessage
}

// Validate checks the event's required fields.
func (e *SystemNotice) Validate() error {
	if e.TargetUserID == uuid.Nil {
		return ErrInvalidID
	}
	if e.Title == "" {
		return ErrNotificationTitleEmpty
	}
	return nil
}

// AchievementUnlocked is raised by the gamification logic when a user earns
// an achievement. The payload is complete at publish time; this core never
// reads achievement tables.
type AchievementUnlocked struct {
	UserID          uuid.UUID
	AchievementID   uuid.UUID
	AchievementName string
	Description     string
	Points          int
	Icon            string
	Level           int
}

// AchievementProgress reports partial progress toward an achievement.
// Progress is a fraction in [0, 1].
type AchievementProgress struct {
	UserID          uuid.UUID
	AchievementID   uuid.UUID
	AchievementName string
	Progress        float64
	Icon            string
}

// StreakUpdate reports a continued or milestone daily streak.
type StreakUpdate struct {
	UserID        uuid.UUID
	CurrentStreak int
	IsMilestone   bool
}

// LevelUp reports that a user reached a new level.
type LevelUp struct {
	UserID   uuid.UUID
	NewLevel int
}
