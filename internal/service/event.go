package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"seatwatch/internal/model"
	"seatwatch/internal/repository"
	"seatwatch/internal/storage"
)

var (
	ErrIDRequired = errors.New("id is required")
	ErrNotFound   = errors.New("event not found")
	ErrNoSnapshot = errors.New("event has no snapshot")
)

// EventListResult is the service-level DTO for paginated events.
type EventListResult struct {
	Items []model.Event `json:"data"`
	Total int           `json:"total"`
}

// EventService defines the use cases for handling occupancy events.
type EventService interface {
	// ProcessSignals persists the events produced by one pipeline run.
	// When a signal's detection carries frame bytes the snapshot is
	// stored first and rolled back if the database insert fails.
	ProcessSignals(ctx context.Context, signals []model.Signal) ([]model.Event, error)

	// List returns events using limit/offset and a total count,
	// optionally filtered by stream.
	List(ctx context.Context, limit, offset int, streamID string) (*EventListResult, error)

	// Get returns a single event by its row ID.
	Get(ctx context.Context, id string) (*model.Event, error)

	// Delete removes an event and its snapshot, if any.
	Delete(ctx context.Context, id string) error

	// SnapshotURL returns a presigned download URL for the event's
	// frame snapshot.
	SnapshotURL(ctx context.Context, id string, expiry time.Duration) (string, error)

	// Snapshot streams the event's frame snapshot from object storage,
	// for callers that cannot follow a presigned URL. The caller must
	// close the reader.
	Snapshot(ctx context.Context, id string) (io.ReadCloser, storage.ObjectInfo, error)
}

// eventService is a concrete implementation of EventService.
type eventService struct {
	store storage.Storage
	repo  repository.EventRepository
}

// NewEventService constructs a new EventService.
func NewEventService(store storage.Storage, repo repository.EventRepository) EventService {
	return &eventService{store: store, repo: repo}
}

func (s *eventService) ProcessSignals(ctx context.Context, signals []model.Signal) ([]model.Event, error) {
	events := make([]model.Event, 0, len(signals))

	for _, sig := range signals {
		ev, err := s.persistSignal(ctx, sig)
		if err != nil {
			return events, err
		}
		events = append(events, *ev)
	}
	return events, nil
}

func (s *eventService) persistSignal(ctx context.Context, sig model.Signal) (*model.Event, error) {
	rowID := uuid.NewString()

	key := ""
	if len(sig.Detection.Frame) > 0 {
		key = fmt.Sprintf("snapshots/%s.jpg", rowID)
		_, err := s.store.Put(ctx, key, bytes.NewReader(sig.Detection.Frame), storage.PutObjectOptions{
			Size:        int64(len(sig.Detection.Frame)),
			ContentType: "image/jpeg",
			Metadata: map[string]string{
				"event-id":  sig.EventID,
				"stream-id": sig.Detection.StreamID,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("store snapshot: %w", err)
		}
	}

	// The persisted payload keeps predictions only; frame bytes live in
	// object storage.
	det := sig.Detection
	det.Frame = nil

	ev := &model.Event{
		ID:           rowID,
		EventID:      sig.EventID,
		StreamID:     sig.Detection.StreamID,
		Kind:         sig.Kind,
		Detection:    det,
		SnapshotPath: key,
		CreatedAt:    time.Now().UTC(),
	}
	stored, err := s.repo.Create(ctx, ev)
	if err != nil {
		if key != "" {
			if delErr := s.store.Delete(ctx, key); delErr != nil {
				return nil, fmt.Errorf("db save failed: %v; rollback delete failed: %v", err, delErr)
			}
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}
	return stored, nil
}

// List returns paginated events without exposing repository types.
func (s *eventService) List(ctx context.Context, limit, offset int, streamID string) (*EventListResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset, StreamID: streamID})
	if err != nil {
		return nil, err
	}
	return &EventListResult{Items: res.Items, Total: res.Total}, nil
}

// Get returns an event by ID.
func (s *eventService) Get(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	ev, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ev, nil
}

// Delete removes an event's snapshot from storage, then deletes its record.
func (s *eventService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrIDRequired
	}
	ev, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	// Delete from storage first; if this fails, keep the DB row so the
	// snapshot reference is not lost.
	if ev.SnapshotPath != "" {
		if err := s.store.Delete(ctx, ev.SnapshotPath); err != nil {
			return fmt.Errorf("delete snapshot: %w", err)
		}
	}
	return s.repo.Delete(ctx, id)
}

// SnapshotURL returns a presigned URL for the event's snapshot.
func (s *eventService) SnapshotURL(ctx context.Context, id string, expiry time.Duration) (string, error) {
	if id == "" {
		return "", ErrIDRequired
	}
	ev, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	if ev.SnapshotPath == "" {
		return "", ErrNoSnapshot
	}
	return s.store.PresignGet(ctx, ev.SnapshotPath, expiry)
}

// Snapshot streams the event's snapshot content from storage.
func (s *eventService) Snapshot(ctx context.Context, id string) (io.ReadCloser, storage.ObjectInfo, error) {
	if id == "" {
		return nil, storage.ObjectInfo{}, ErrIDRequired
	}
	ev, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ObjectInfo{}, ErrNotFound
		}
		return nil, storage.ObjectInfo{}, err
	}
	if ev.SnapshotPath == "" {
		return nil, storage.ObjectInfo{}, ErrNoSnapshot
	}
	return s.store.Get(ctx, ev.SnapshotPath)
}
