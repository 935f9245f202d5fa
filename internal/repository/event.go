package repository

import (
	"context"

	"seatwatch/internal/model"
)

// EventRepository defines data access for occupancy events using SQL
// queries only. No business logic here, strictly persistence.
type EventRepository interface {
	// Create inserts a new event record. The caller provides ID and
	// CreatedAt; the stored row is returned.
	Create(ctx context.Context, ev *model.Event) (*model.Event, error)

	// FindByID returns an event by its row ID.
	FindByID(ctx context.Context, id string) (*model.Event, error)

	// List returns a page of events, newest first, optionally filtered
	// by stream, together with the total row count for the filter.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Event], error)

	// Delete removes an event by ID. It returns nil if the row was
	// deleted or did not exist.
	Delete(ctx context.Context, id string) error
}
