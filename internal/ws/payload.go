package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/onetask/onetask-api/internal/domain"
)

// Wire event type strings. Clients switch on the envelope's "type" field.
const (
	wireTypeNotification        = "notification"
	wireTypeTaskUpdate          = "task_update"
	wireTypeAchievementUnlocked = "achievement_unlocked"
	wireTypeAchievementProgress = "achievement_progress"
	wireTypeStreakUpdate        = "streak_update"
	wireTypeLevelUp             = "level_up"
)

// Each event variant has its own serializer struct, so the compiler checks
// payload shapes at every publish site instead of a handler assembling maps.

// notificationEnvelope is the wire shape for generic notifications: workspace
// broadcasts and system notices.
type notificationEnvelope struct {
	Type              string          `json:"type"`
	NotificationID    uuid.UUID       `json:"notification_id"`
	Title             string          `json:"title"`
	Content           string          `json:"content"`
	NotificationType  string          `json:"notification_type"`
	RelatedEntityType string          `json:"related_entity_type,omitempty"`
	RelatedEntityID   *uuid.UUID      `json:"related_entity_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	Data              json.RawMessage `json:"data,omitempty"`
}

// taskUpdateEnvelope is the wire shape for task change events.
type taskUpdateEnvelope struct {
	Type        string            `json:"type"`
	TaskID      uuid.UUID         `json:"task_id"`
	Title       string            `json:"title"`
	Action      domain.TaskAction `json:"action"`
	WorkspaceID *uuid.UUID        `json:"workspace_id,omitempty"`
	ActorID     uuid.UUID         `json:"actor_id"`
	Timestamp   time.Time         `json:"timestamp"`
}

// achievementEnvelope is the wire shape shared by achievement_unlocked and
// achievement_progress; the data block distinguishes them.
type achievementEnvelope struct {
	Type           string          `json:"type"`
	NotificationID uuid.UUID       `json:"notification_id"`
	Title          string          `json:"title"`
	Content        string          `json:"content"`
	Data           json.RawMessage `json:"data"`
}

type achievementUnlockedData struct {
	AchievementID   uuid.UUID `json:"achievement_id"`
	AchievementName string    `json:"achievement_name"`
	Points          int       `json:"points"`
	Icon            string    `json:"icon,omitempty"`
	Level           int       `json:"level,omitempty"`
}

type achievementProgressData struct {
	AchievementID   uuid.UUID `json:"achievement_id"`
	AchievementName string    `json:"achievement_name"`
	Progress        float64   `json:"progress"`
	Icon            string    `json:"icon,omitempty"`
}

// streakEnvelope is the wire shape for streak updates.
type streakEnvelope struct {
	Type string     `json:"type"`
	Data streakData `json:"data"`
}

type streakData struct {
	CurrentStreak int  `json:"current_streak"`
	IsMilestone   bool `json:"is_milestone"`
}

// levelUpEnvelope is the wire shape for level-up events.
type levelUpEnvelope struct {
	Type string      `json:"type"`
	Data levelUpData `json:"data"`
}

type levelUpData struct {
	NewLevel int `json:"new_level"`
}

// marshalNotification serializes a persisted notification into the generic
// notification envelope. notificationID may differ from n.ID for broadcast
// events serialized once for many recipients.
func marshalNotification(notificationID uuid.UUID, n *domain.Notification) ([]byte, error) {
	return json.Marshal(notificationEnvelope{
		Type:              wireTypeNotification,
		NotificationID:    notificationID,
		Title:             n.Title,
		Content:           n.Content,
		NotificationType:  string(n.Type),
		RelatedEntityType: n.RelatedEntityType,
		RelatedEntityID:   n.RelatedEntityID,
		CreatedAt:         n.CreatedAt,
		Data:              n.Data,
	})
}

// marshalTaskUpdate serializes a task event.
func marshalTaskUpdate(e *domain.TaskEvent, at time.Time) ([]byte, error) {
	return json.Marshal(taskUpdateEnvelope{
		Type:        wireTypeTaskUpdate,
		TaskID:      e.TaskID,
		Title:       e.Title,
		Action:      e.Action,
		WorkspaceID: e.WorkspaceID,
		ActorID:     e.ActorID,
		Timestamp:   at.UTC(),
	})
}

// marshalAchievementUnlocked serializes an unlocked achievement together
// with the ID of its persisted notification.
func marshalAchievementUnlocked(
	notificationID uuid.UUID,
	title, content string,
	e *domain.AchievementUnlocked,
) ([]byte, error) {
	data, err := json.Marshal(achievementUnlockedData{
		AchievementID:   e.AchievementID,
		AchievementName: e.AchievementName,
		Points:          e.Points,
		Icon:            e.Icon,
		Level:           e.Level,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(achievementEnvelope{
		Type:           wireTypeAchievementUnlocked,
		NotificationID: notificationID,
		Title:          title,
		Content:        content,
		Data:           data,
	})
}

// marshalAchievementProgress serializes achievement progress together with
// the ID of its persisted notification.
func marshalAchievementProgress(
	notificationID uuid.UUID,
	title, content string,
	e *domain.AchievementProgress,
) ([]byte, error) {
	data, err := json.Marshal(achievementProgressData{
		AchievementID:   e.AchievementID,
		AchievementName: e.AchievementName,
		Progress:        e.Progress,
		Icon:            e.Icon,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(achievementEnvelope{
		Type:           wireTypeAchievementProgress,
		NotificationID: notificationID,
		Title:          title,
		Content:        content,
		Data:           data,
	})
}

// marshalStreakUpdate serializes a streak update.
func marshalStreakUpdate(e *domain.StreakUpdate) ([]byte, error) {
	return json.Marshal(streakEnvelope{
		Type: wireTypeStreakUpdate,
		Data: streakData{
			CurrentStreak: e.CurrentStreak,
			IsMilestone:   e.IsMilestone,
		},
	})
}

// marshalLevelUp serializes a level-up event.
func marshalLevelUp(e *domain.LevelUp) ([]byte, error) {
	return json.Marshal(levelUpEnvelope{
		Type: wireTypeLevelUp,
		Data: levelUpData{NewLevel: e.NewLevel},
	})
}
