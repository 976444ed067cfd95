package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// Change event types emitted after confirmed mutations.
const (
	TaskCreated     = "task-created"
	TaskUpdated     = "task-updated"
	TaskDeleted     = "task-deleted"
	TaskMoved       = "task-moved"
	CategoryCreated = "category-created"
	CategoryUpdated = "category-updated"
	CategoryDeleted = "category-deleted"
)

// Event describes a confirmed change to the domain model.
type Event struct {
	ID         string          `json:"id"`
	EntityID   string          `json:"entityId"`
	EntityType string          `json:"entityType"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	Time       int64           `json:"time"`
	UserID     string          `json:"userId"`
}

// NewEvent builds an event with a fresh id and the current wall clock.
func NewEvent(userID, entityType, entityID, eventType string, data any) (Event, error) {
	ev := Event{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		EntityType: entityType,
		Type:       eventType,
		Time:       time.Now().UnixMilli(),
		UserID:     userID,
	}
	if data != nil {
		payload, err := sonic.Marshal(data)
		if err != nil {
			return Event{}, err
		}
		ev.Data = payload
	}
	return ev, nil
}

// QueuePublisher pushes change events to an Azure Storage queue for
// downstream consumers (stats, activity feeds).
type QueuePublisher struct {
	queue *azqueue.QueueClient
}

// NewQueuePublisher creates a publisher from the given connection string.
func NewQueuePublisher(connStr, queueName string) (*QueuePublisher, error) {
	queue, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, nil)
	if err != nil {
		return nil, err
	}
	return &QueuePublisher{queue: queue}, nil
}

// Publish enqueues the given events in order.
func (p *QueuePublisher) Publish(ctx context.Context, events ...Event) error {
	for _, ev := range events {
		data, err := sonic.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := p.queue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return err
		}
	}
	return nil
}
