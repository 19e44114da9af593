// Package store persists accepted messages and serves the read side.
package store

import (
	"context"
	"errors"

	"webhook-ingest/backend/internal/models"
)

// ErrUnavailable wraps every failure of the backing database. Callers map it
// to a service-level error without inspecting the engine error underneath.
var ErrUnavailable = errors.New("message store unavailable")

// InsertResult tells whether InsertIfAbsent wrote a row
type InsertResult int

const (
	// InsertCreated means the message was stored by this call
	InsertCreated InsertResult = iota + 1
	// InsertDuplicate means a message with the same id already existed
	InsertDuplicate
)

func (r InsertResult) String() string {
	switch r {
	case InsertCreated:
		return "created"
	case InsertDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// MessageStore is the durable, uniquely keyed collection of messages
type MessageStore interface {
	// InsertIfAbsent stores msg unless its MessageID is already present.
	// Concurrent calls with the same id see exactly one InsertCreated.
	InsertIfAbsent(ctx context.Context, msg *models.Message) (InsertResult, error)
	// List returns one page ordered by (ts, message_id) and the number of
	// rows matching filter, both read from the same snapshot.
	List(ctx context.Context, filter models.MessageFilter, limit, offset int) ([]models.Message, int64, error)
	// Aggregate computes table-wide statistics from a single snapshot
	Aggregate(ctx context.Context) (*models.Stats, error)
	// Ping checks that the database is reachable
	Ping(ctx context.Context) error
	Close() error
}
