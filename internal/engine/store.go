package engine

import (
	"context"
	"time"

	"github.com/shifahealth/adherence-backend/pkg/model"
)

// EventStore is the persistence contract the engine consumes. Events are
// append-only; profiles are replaced wholesale.
type EventStore interface {
	AppendEvent(ctx context.Context, event *model.DoseEvent) error
	// QueryEvents returns events for a user ordered by scheduled time
	// ascending, optionally filtered to one medication. medicationID == ""
	// means all medications.
	QueryEvents(ctx context.Context, userID, medicationID string, since time.Time) ([]model.DoseEvent, error)
	SaveProfile(ctx context.Context, profile *model.UserAdherenceProfile) error
	// LoadProfile returns the stored profile or nil when none exists
	LoadProfile(ctx context.Context, userID string) (*model.UserAdherenceProfile, error)
}

// Invalidator receives cache-invalidation signals on the write path
type Invalidator interface {
	Invalidate(userID string)
}
