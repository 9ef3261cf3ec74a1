package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AssetLocker serializes writers of one asset
type AssetLocker interface {
	// Acquire blocks until the lock for key is held or ctx is done. The returned
	// release func is safe to call once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// EventPublisher defines the interface for domain event publishing
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Event represents a domain event
type Event struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Aggregate   string                 `json:"aggregate"`
	AggregateID string                 `json:"aggregate_id"`
	Actor       string                 `json:"actor,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Event Types
const (
	EventTypeAssetCreated  = "asset.created"
	EventTypeAssetUpdated  = "asset.updated"
	EventTypeAssetVerified = "asset.verified"
	EventTypeAssetDeleted  = "asset.deleted"
)

// NewEvent creates a new domain event
func NewEvent(eventType, aggregate, aggregateID, actor string, data map[string]interface{}, at time.Time) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		Aggregate:   aggregate,
		AggregateID: aggregateID,
		Actor:       actor,
		Data:        data,
		CreatedAt:   at,
	}
}
