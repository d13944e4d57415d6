package ws

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/onetask/onetask-api/internal/domain"
	"github.com/onetask/onetask-api/internal/platform/logger"
	"github.com/onetask/onetask-api/internal/store"
)

// Dispatcher is the only entry point business logic calls to raise a domain
// event. For every publish it resolves the recipient set, persists one
// notification per recipient, and only then attempts live delivery through
// the registry. Persistence failures abort the publish; delivery faults are
// absorbed by the registry and never surface here.
type Dispatcher struct {
	notifications store.NotificationStore
	memberships   store.MembershipStore
	registry      *Registry

	// db enables wrapping multi-recipient writes in a transaction.
	// Nil is allowed (in-memory stores in tests); the batch insert is then
	// a single statement against whatever backs the store.
	db *sql.DB

	logger *slog.Logger
}

// PublishResult reports what a publish call did: the IDs of the persisted
// notifications (one per recipient) and how many live connections accepted
// the payload. A delivered count of zero is normal; every recipient may be
// offline.
type PublishResult struct {
	NotificationIDs []uuid.UUID
	DeliveredCount  int
}

// NewDispatcher creates a dispatcher over the given stores and registry.
func NewDispatcher(
	notifications store.NotificationStore,
	memberships store.MembershipStore,
	registry *Registry,
	db *sql.DB,
	log *slog.Logger,
) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		notifications: notifications,
		memberships:   memberships,
		registry:      registry,
		db:            db,
		logger:        log.With(slog.String("component", "ws_dispatcher")),
	}
}

// PublishTaskEvent persists and delivers a task change. Recipients are the
// event's target users, defaulting to the actor for a personal task. When
// the task belongs to a workspace the payload is also delivered to
// connections opened in that workspace's scope, minus the actor.
func (d *Dispatcher) PublishTaskEvent(
	ctx context.Context,
	e *domain.TaskEvent,
) (*PublishResult, error) {
	log := logger.FromContextOrDefault(ctx, d.logger)

	if err := e.Validate(); err != nil {
		return nil, err
	}

	recipients := uniqueIDs(e.TargetUserIDs)
	if len(recipients) == 0 {
		recipients = []uuid.UUID{e.ActorID}
	}

	title := fmt.Sprintf("Task %s", e.Action)
	batch := make([]*domain.Notification, 0, len(recipients))
	for _, userID := range recipients {
		n, err := buildNotification(
			userID,
			domain.NotificationTypeTask,
			title,
			e.Title,
			"task",
			&e.TaskID,
			nil,
		)
		if err != nil {
			return nil, err
		}
		batch = append(batch, n)
	}

	if err := d.persist(ctx, batch); err != nil {
		return nil, err
	}

	payload, err := marshalTaskUpdate(e, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to serialize task event: %w", err)
	}

	delivered := 0
	for _, userID := range recipients {
		delivered += d.registry.DeliverToUser(userID, payload)
	}
	if e.WorkspaceID != nil {
		delivered += d.registry.DeliverToScope(
			WorkspaceKey(*e.WorkspaceID),
			setOf(e.ActorID),
			payload,
		)
	}

	log.Debug("task event published",
		slog.String("task_id", e.TaskID.String()),
		slog.String("action", string(e.Action)),
		slog.Int("recipients", len(recipients)),
		slog.Int("delivered", delivered))
	return &PublishResult{
		NotificationIDs: notificationIDs(batch),
		DeliveredCount:  delivered,
	}, nil
}

// PublishWorkspaceEvent persists and delivers a workspace broadcast.
// The recipient set is the workspace's members minus ExcludeUserIDs; the
// actor stays in it and keeps a persisted row. Live delivery additionally
// excludes the actor, on both the personal keys and the workspace scope key,
// so no one receives an echo of their own action.
func (d *Dispatcher) PublishWorkspaceEvent(
	ctx context.Context,
	e *domain.WorkspaceBroadcast,
) (*PublishResult, error) {
	log := logger.FromContextOrDefault(ctx, d.logger)

	if err := e.Validate(); err != nil {
		return nil, err
	}

	members, err := d.memberships.WorkspaceMemberIDs(ctx, e.WorkspaceID)
	if err != nil {
		log.Error("failed to resolve workspace members",
			slog.String("error", err.Error()),
			slog.String("workspace_id", e.WorkspaceID.String()))
		return nil, fmt.Errorf("%w: %v", ErrRecipientResolution, err)
	}

	excluded := setOf(e.ExcludeUserIDs...)
	recipients := make([]uuid.UUID, 0, len(members))
	for _, userID := range uniqueIDs(members) {
		if _, skip := excluded[userID]; !skip {
			recipients = append(recipients, userID)
		}
	}

	batch := make([]*domain.Notification, 0, len(recipients))
	for _, userID := range recipients {
		n, err := buildNotification(
			userID,
			domain.NotificationTypeWorkspace,
			e.Title,
			e.Content,
			e.RelatedEntityType,
			e.RelatedEntityID,
			e.Data,
		)
		if err != nil {
			return nil, err
		}
		batch = append(batch, n)
	}

	if err := d.persist(ctx, batch); err != nil {
		return nil, err
	}

	// Serialized once for all recipients. The envelope carries a fresh
	// event-level ID rather than any single recipient's row ID; clients
	// de-duplicate on it when connected under two scopes at once.
	template := &domain.Notification{
		Type:              domain.NotificationTypeWorkspace,
		Title:             e.Title,
		Content:           e.Content,
		RelatedEntityType: e.RelatedEntityType,
		RelatedEntityID:   e.RelatedEntityID,
		Data:              e.Data,
		CreatedAt:         time.Now().UTC(),
	}
	payload, err := marshalNotification(uuid.New(), template)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workspace event: %w", err)
	}

	liveExcluded := setOf(e.ExcludeUserIDs...)
	liveExcluded[e.ActorID] = struct{}{}

	delivered := d.registry.DeliverToUsersExcluding(recipients, liveExcluded, payload)
	delivered += d.registry.DeliverToScope(WorkspaceKey(e.WorkspaceID), liveExcluded, payload)

	log.Debug("workspace event published",
		slog.String("workspace_id", e.WorkspaceID.String()),
		slog.Int("recipients", len(recipients)),
		slog.Int("delivered", delivered))
	return &PublishResult{
		NotificationIDs: notificationIDs(batch),
		DeliveredCount:  delivered,
	}, nil
}

// PublishSystemEvent persists and delivers a system notice to its single
// target user.
func (d *Dispatcher) PublishSystemEvent(
	ctx context.Context,
	e *domain.SystemNotice,
) (*PublishResult, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	n, err := buildNotification(
		e.TargetUserID,
		domain.NotificationTypeSystem,
		e.Title,
		e.Content,
		"",
		nil,
		e.Data,
	)
	if err != nil {
		return nil, err
	}

	return d.publishToUser(ctx, n, func() ([]byte, error) {
		return marshalNotification(n.ID, n)
	})
}

// PublishAchievementUnlocked persists and delivers an unlocked achievement.
func (d *Dispatcher) PublishAchievementUnlocked(
	ctx context.Context,
	e *domain.AchievementUnlocked,
) (*PublishResult, error) {
	content := e.Description
	if content == "" {
		content = fmt.Sprintf("You unlocked %s!", e.AchievementName)
	}

	data, err := json.Marshal(achievementUnlockedData{
		AchievementID:   e.AchievementID,
		AchievementName: e.AchievementName,
		Points:          e.Points,
		Icon:            e.Icon,
		Level:           e.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize achievement data: %w", err)
	}

	n, err := buildNotification(
		e.UserID,
		domain.NotificationTypeAchievement,
		"Achievement Unlocked!",
		content,
		"achievement",
		&e.AchievementID,
		data,
	)
	if err != nil {
		return nil, err
	}

	return d.publishToUser(ctx, n, func() ([]byte, error) {
		return marshalAchievementUnlocked(n.ID, n.Title, n.Content, e)
	})
}

// PublishAchievementProgress persists and delivers partial achievement
// progress.
func (d *Dispatcher) PublishAchievementProgress(
	ctx context.Context,
	e *domain.AchievementProgress,
) (*PublishResult, error) {
	content := fmt.Sprintf("%s: %.0f%% complete", e.AchievementName, e.Progress*100)

	data, err := json.Marshal(achievementProgressData{
		AchievementID:   e.AchievementID,
		AchievementName: e.AchievementName,
		Progress:        e.Progress,
		Icon:            e.Icon,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize achievement data: %w", err)
	}

	n, err := buildNotification(
		e.UserID,
		domain.NotificationTypeAchievementProgress,
		"Achievement Progress",
		content,
		"achievement",
		&e.AchievementID,
		data,
	)
	if err != nil {
		return nil, err
	}

	return d.publishToUser(ctx, n, func() ([]byte, error) {
		return marshalAchievementProgress(n.ID, n.Title, n.Content, e)
	})
}

// PublishStreakUpdate persists and delivers a streak continuation or
// milestone.
func (d *Dispatcher) PublishStreakUpdate(
	ctx context.Context,
	e *domain.StreakUpdate,
) (*PublishResult, error) {
	title := "Streak Continued!"
	if e.IsMilestone {
		title = "Streak Milestone!"
	}

	data, err := json.Marshal(streakData{
		CurrentStreak: e.CurrentStreak,
		IsMilestone:   e.IsMilestone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize streak data: %w", err)
	}

	n, err := buildNotification(
		e.UserID,
		domain.NotificationTypeStreak,
		title,
		fmt.Sprintf("%d day streak", e.CurrentStreak),
		"",
		nil,
		data,
	)
	if err != nil {
		return nil, err
	}

	return d.publishToUser(ctx, n, func() ([]byte, error) {
		return marshalStreakUpdate(e)
	})
}

// PublishLevelUp persists and delivers a level-up event.
func (d *Dispatcher) PublishLevelUp(
	ctx context.Context,
	e *domain.LevelUp,
) (*PublishResult, error) {
	data, err := json.Marshal(levelUpData{NewLevel: e.NewLevel})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize level data: %w", err)
	}

	n, err := buildNotification(
		e.UserID,
		domain.NotificationTypeLevelUp,
		"Level Up!",
		fmt.Sprintf("You reached level %d", e.NewLevel),
		"",
		nil,
		data,
	)
	if err != nil {
		return nil, err
	}

	return d.publishToUser(ctx, n, func() ([]byte, error) {
		return marshalLevelUp(e)
	})
}

// publishToUser persists a single-recipient notification and delivers the
// payload to the recipient's personal key.
func (d *Dispatcher) publishToUser(
	ctx context.Context,
	n *domain.Notification,
	marshal func() ([]byte, error),
) (*PublishResult, error) {
	log := logger.FromContextOrDefault(ctx, d.logger)

	if err := d.persist(ctx, []*domain.Notification{n}); err != nil {
		return nil, err
	}

	payload, err := marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event: %w", err)
	}

	delivered := d.registry.DeliverToUser(n.UserID, payload)

	log.Debug("event published",
		slog.String("notification_id", n.ID.String()),
		slog.String("user_id", n.UserID.String()),
		slog.String("type", string(n.Type)),
		slog.Int("delivered", delivered))
	return &PublishResult{
		NotificationIDs: []uuid.UUID{n.ID},
		DeliveredCount:  delivered,
	}, nil
}

// persist writes the batch, transactionally when a database handle is
// available. Any failure aborts the publish before delivery is attempted.
func (d *Dispatcher) persist(ctx context.Context, batch []*domain.Notification) error {
	if len(batch) == 0 {
		return nil
	}

	var err error
	if d.db != nil && len(batch) > 1 {
		err = store.RunInTransaction(ctx, d.db, func(ctx context.Context, tx *sql.Tx) error {
			return d.notifications.WithTx(tx).CreateBatch(ctx, batch)
		})
	} else {
		err = d.notifications.CreateBatch(ctx, batch)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// buildNotification assembles a validated notification for one recipient.
func buildNotification(
	userID uuid.UUID,
	typ domain.NotificationType,
	title, content string,
	relatedEntityType string,
	relatedEntityID *uuid.UUID,
	data json.RawMessage,
) (*domain.Notification, error) {
	n, err := domain.NewNotification(userID, typ, title, content)
	if err != nil {
		return nil, err
	}
	n.RelatedEntityType = relatedEntityType
	n.RelatedEntityID = relatedEntityID
	n.Data = data
	return n, nil
}

// notificationIDs collects the IDs of a persisted batch.
func notificationIDs(batch []*domain.Notification) []uuid.UUID {
	ids := make([]uuid.UUID, len(batch))
	for i, n := range batch {
		ids[i] = n.ID
	}
	return ids
}

// uniqueIDs deduplicates while preserving order.
func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// setOf builds a membership set from the given IDs.
func setOf(ids ...uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
