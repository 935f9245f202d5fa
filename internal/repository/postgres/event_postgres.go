package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"seatwatch/internal/model"
	"seatwatch/internal/repository"
)

// EventPostgres is a PostgreSQL implementation of repository.EventRepository.
// It uses database/sql with parameterized queries and contains no business logic.
// The detection payload is stored as JSONB.
type EventPostgres struct {
	db *sql.DB
}

// NewEventPostgres creates a new EventPostgres repository.
func NewEventPostgres(db *sql.DB) *EventPostgres {
	return &EventPostgres{db: db}
}

var _ repository.EventRepository = (*EventPostgres)(nil)

// Create inserts a new event row and returns the stored record.
func (r *EventPostgres) Create(ctx context.Context, ev *model.Event) (*model.Event, error) {
	payload, err := json.Marshal(ev.Detection)
	if err != nil {
		return nil, fmt.Errorf("marshal detection: %w", err)
	}

	const q = `
		INSERT INTO events (id, event_id, stream_id, kind, detection, snapshot_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, event_id, stream_id, kind, detection, snapshot_path, created_at
	`
	row := r.db.QueryRowContext(ctx, q,
		ev.ID,
		ev.EventID,
		ev.StreamID,
		string(ev.Kind),
		payload,
		nullString(ev.SnapshotPath),
		ev.CreatedAt,
	)
	return scanEventRow(row)
}

// FindByID fetches a single event by its row ID.
func (r *EventPostgres) FindByID(ctx context.Context, id string) (*model.Event, error) {
	const q = `
		SELECT id, event_id, stream_id, kind, detection, snapshot_path, created_at
		FROM events
		WHERE id = $1
	`
	return scanEventRow(r.db.QueryRowContext(ctx, q, id))
}

// List returns events newest first using LIMIT/OFFSET pagination and a
// total count. An empty StreamID matches all streams.
func (r *EventPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Event], error) {
	const qCount = `SELECT COUNT(*) FROM events WHERE ($1 = '' OR stream_id = $1)`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, pq.StreamID).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT id, event_id, stream_id, kind, detection, snapshot_path, created_at
		FROM events
		WHERE ($1 = '' OR stream_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, qList, pq.StreamID, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Event, 0)
	for rows.Next() {
		ev, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Event]{
		Items: items,
		Total: total,
	}, nil
}

// Delete removes an event by ID. It does not return an error if the row does not exist.
func (r *EventPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM events WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	_, _ = res.RowsAffected()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEventRow(row rowScanner) (*model.Event, error) {
	var (
		ev       model.Event
		kind     string
		payload  []byte
		snapshot sql.NullString
	)
	if err := row.Scan(
		&ev.ID,
		&ev.EventID,
		&ev.StreamID,
		&kind,
		&payload,
		&snapshot,
		&ev.CreatedAt,
	); err != nil {
		return nil, err
	}
	ev.Kind = model.SignalKind(kind)
	ev.SnapshotPath = snapshot.String
	if err := json.Unmarshal(payload, &ev.Detection); err != nil {
		return nil, fmt.Errorf("unmarshal detection: %w", err)
	}
	return &ev, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
