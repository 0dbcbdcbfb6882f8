package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"license-authority/pkg/clock"
	"license-authority/pkg/db/option"
	"license-authority/pkg/repository"
	"license-authority/pkg/task"
	"license-authority/pkg/taskname"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultEventQueue = "license-events"

func newEvent(node *snowflake.Node, typ EventType, l *License, now int64) (*Event, error) {
	e := &Event{
		ID:                  node.Generate().String(),
		Type:                typ,
		LicenseID:           l.ID,
		Owner:               l.Owner,
		SoftwareID:          l.SoftwareID,
		ExpirationTimestamp: l.ExpirationTimestamp,
		IsActive:            l.IsActive,
		OccurredAt:          now,
	}

	b, err := json.Marshal(e.payload())
	if err != nil {
		return nil, err
	}
	e.Payload = datatypes.JSON(b)
	return e, nil
}

func (e *Event) payload() EventPayload {
	return EventPayload{
		EventID:             e.ID,
		Type:                e.Type,
		Address:             e.LicenseID,
		Owner:               e.Owner,
		SoftwareID:          e.SoftwareID,
		ExpirationTimestamp: e.ExpirationTimestamp,
		IsActive:            e.IsActive,
		OccurredAt:          e.OccurredAt,
	}
}

func logEvent(e *Event) {
	fields := []zap.Field{
		zap.String("event_id", e.ID),
		zap.String("address", e.LicenseID),
		zap.String("owner", e.Owner.String()),
		zap.Uint64("software_id", e.SoftwareID),
	}

	switch e.Type {
	case EventIssued:
		zap.L().Info("license issued", append(fields, zap.Int64("expires_at", e.ExpirationTimestamp))...)
	case EventRenewed:
		zap.L().Info("license renewed", append(fields, zap.Int64("new_expiration", e.ExpirationTimestamp))...)
	case EventStatusChanged:
		zap.L().Info("license status changed", append(fields, zap.Bool("is_active", e.IsActive))...)
	}
}

// NewEventTask builds the license:event task for e. The event id doubles as
// the asynq task id so dispatching the same event twice enqueues it once.
func NewEventTask(e *Event, queue string) (*asynq.Task, error) {
	b, err := json.Marshal(e.payload())
	if err != nil {
		return nil, err
	}
	if queue == "" {
		queue = defaultEventQueue
	}
	return asynq.NewTask(taskname.LicenseEvent, b,
		asynq.Queue(queue),
		asynq.TaskID(e.ID),
		asynq.MaxRetry(10),
	), nil
}

// Dispatcher hands committed outbox events to the task queue.
type Dispatcher struct {
	enqueuer task.Enqueuer
	events   repository.Repository[Event]
	queue    string
	clock    clock.Clock
}

func NewDispatcher(enqueuer task.Enqueuer, events repository.Repository[Event], queue string, c clock.Clock) *Dispatcher {
	if c == nil {
		c = clock.Real()
	}
	return &Dispatcher{enqueuer: enqueuer, events: events, queue: queue, clock: c}
}

// Dispatch enqueues e and marks it dispatched. A task id conflict means an
// earlier attempt already enqueued it.
func (d *Dispatcher) Dispatch(ctx context.Context, e *Event) error {
	if d.enqueuer == nil {
		return nil
	}

	t, err := NewEventTask(e, d.queue)
	if err != nil {
		return err
	}

	if _, err := d.enqueuer.Enqueue(ctx, t); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("dispatch event %s: %w", e.ID, err)
	}

	now := d.clock.Now()
	if err := d.events.Update(ctx, e.ID, map[string]any{"dispatched_at": now}); err != nil {
		return fmt.Errorf("mark event %s dispatched: %w", e.ID, err)
	}
	e.DispatchedAt = &now
	return nil
}

// Relay re-dispatches events whose post-commit dispatch did not go through.
type Relay struct {
	events     repository.Repository[Event]
	dispatcher *Dispatcher
	interval   time.Duration
	batch      int
}

func NewRelay(db *gorm.DB, dispatcher *Dispatcher, interval time.Duration, batch int) *Relay {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Relay{
		events:     repository.ProvideStore[Event](db),
		dispatcher: dispatcher,
		interval:   interval,
		batch:      batch,
	}
}

// RunOnce dispatches one batch of pending events, oldest first, and returns
// how many went out. It stops at the first failure so ordering is kept.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.events.Find(ctx, &Event{},
		option.ApplyOperator(option.Condition{Field: "dispatched_at", Operator: option.IsNull}),
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "asc"}),
		func(db *gorm.DB) *gorm.DB { return db.Order("id ASC").Limit(r.batch) },
	)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, e := range pending {
		if err := r.dispatcher.Dispatch(ctx, e); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// Run calls RunOnce every interval until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		n, err := r.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			zap.L().Error("license event relay failed", zap.Int("dispatched", n), zap.Error(err))
		} else if n > 0 {
			zap.L().Info("license event relay dispatched", zap.Int("dispatched", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
