package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"seatwatch/internal/model"
	"seatwatch/internal/service"
	"seatwatch/internal/storage"
)

type MockEventService struct {
	mock.Mock
}

func (m *MockEventService) ProcessSignals(ctx context.Context, signals []model.Signal) ([]model.Event, error) {
	args := m.Called(ctx, signals)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Event), args.Error(1)
}

func (m *MockEventService) List(ctx context.Context, limit, offset int, streamID string) (*service.EventListResult, error) {
	args := m.Called(ctx, limit, offset, streamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.EventListResult), args.Error(1)
}

func (m *MockEventService) Get(ctx context.Context, id string) (*model.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Event), args.Error(1)
}

func (m *MockEventService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockEventService) SnapshotURL(ctx context.Context, id string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, id, expiry)
	return args.String(0), args.Error(1)
}

func (m *MockEventService) Snapshot(ctx context.Context, id string) (io.ReadCloser, storage.ObjectInfo, error) {
	args := m.Called(ctx, id)
	var rc io.ReadCloser
	if args.Get(0) != nil {
		rc = args.Get(0).(io.ReadCloser)
	}
	return rc, args.Get(1).(storage.ObjectInfo), args.Error(2)
}
