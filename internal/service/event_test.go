package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"seatwatch/internal/model"
	"seatwatch/internal/repository"
	repoMocks "seatwatch/internal/repository/mocks"
	"seatwatch/internal/storage"
	storeMocks "seatwatch/internal/storage/mocks"
)

func signalPair(frame []byte) []model.Signal {
	det := model.Detection{
		StreamID: "cam-1",
		FrameID:  "9",
		Predictions: []model.Prediction{
			{ClassID: "chair", Confidence: 0.9, BoundingBox: model.Quadrilateral(0, 0, 10, 10)},
		},
		Frame: frame,
	}
	return []model.Signal{
		{Kind: model.SignalStarted, EventID: "ev-1", Detection: det},
		{Kind: model.SignalEnded, EventID: "ev-1", Detection: det},
	}
}

func TestEventService_ProcessSignals(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		signals    []model.Signal
		setupMocks func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockEventRepository)
		wantEvents int
		wantErrMsg string
	}{
		{
			name:    "pair with snapshots",
			signals: signalPair([]byte{0xff, 0xd8, 0x01}),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockEventRepository) {
				mStore.On("Put", ctx, mock.MatchedBy(func(key string) bool {
					return strings.HasPrefix(key, "snapshots/") && strings.HasSuffix(key, ".jpg")
				}), mock.Anything, mock.Anything).Return(storage.ObjectInfo{Key: "snapshots/x.jpg"}, nil).Twice()

				mRepo.On("Create", ctx, mock.MatchedBy(func(ev *model.Event) bool {
					return ev.EventID == "ev-1" && ev.StreamID == "cam-1" &&
						ev.SnapshotPath != "" && ev.Detection.Frame == nil
				})).Return(&model.Event{ID: "row"}, nil).Twice()
			},
			wantEvents: 2,
		},
		{
			name:    "no frame skips storage",
			signals: signalPair(nil),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockEventRepository) {
				mRepo.On("Create", ctx, mock.MatchedBy(func(ev *model.Event) bool {
					return ev.SnapshotPath == ""
				})).Return(&model.Event{ID: "row"}, nil).Twice()
			},
			wantEvents: 2,
		},
		{
			name:    "storage error",
			signals: signalPair([]byte{0xff}),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockEventRepository) {
				mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{}, errors.New("storage fail"))
			},
			wantErrMsg: "store snapshot: storage fail",
		},
		{
			name:    "repository error with successful rollback",
			signals: signalPair([]byte{0xff}),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockEventRepository) {
				mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{Key: "snapshots/x.jpg"}, nil)
				mRepo.On("Create", ctx, mock.Anything).Return(nil, errors.New("db fail"))
				mStore.On("Delete", ctx, mock.Anything).Return(nil)
			},
			wantErrMsg: "db save failed: db fail",
		},
		{
			name:    "repository error with failed rollback",
			signals: signalPair([]byte{0xff}),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockEventRepository) {
				mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{Key: "snapshots/x.jpg"}, nil)
				mRepo.On("Create", ctx, mock.Anything).Return(nil, errors.New("db fail"))
				mStore.On("Delete", ctx, mock.Anything).Return(errors.New("delete fail"))
			},
			wantErrMsg: "rollback delete failed: delete fail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockEventRepository)
			svc := NewEventService(mStore, mRepo)

			tt.setupMocks(mStore, mRepo)

			events, err := svc.ProcessSignals(ctx, tt.signals)
			if tt.wantErrMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrMsg)
			} else {
				require.NoError(t, err)
				assert.Len(t, events, tt.wantEvents)
			}

			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestEventService_List(t *testing.T) {
	ctx := context.Background()
	mRepo := new(repoMocks.MockEventRepository)
	svc := NewEventService(new(storeMocks.MockStorage), mRepo)

	// Defaults kick in for non-positive limit and negative offset.
	mRepo.On("List", ctx, repository.PageQuery{Limit: 10, Offset: 0, StreamID: "cam-1"}).
		Return(&repository.PageResult[model.Event]{Items: []model.Event{{ID: "e1"}}, Total: 1}, nil)

	res, err := svc.List(ctx, 0, -3, "cam-1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "e1", res.Items[0].ID)
}

func TestEventService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("missing id", func(t *testing.T) {
		svc := NewEventService(new(storeMocks.MockStorage), new(repoMocks.MockEventRepository))
		_, err := svc.Get(ctx, "")
		assert.ErrorIs(t, err, ErrIDRequired)
	})

	t.Run("not found", func(t *testing.T) {
		mRepo := new(repoMocks.MockEventRepository)
		mRepo.On("FindByID", ctx, "nope").Return(nil, sql.ErrNoRows)
		svc := NewEventService(new(storeMocks.MockStorage), mRepo)

		_, err := svc.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("found", func(t *testing.T) {
		mRepo := new(repoMocks.MockEventRepository)
		mRepo.On("FindByID", ctx, "e1").Return(&model.Event{ID: "e1"}, nil)
		svc := NewEventService(new(storeMocks.MockStorage), mRepo)

		ev, err := svc.Get(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, "e1", ev.ID)
	})
}

func TestEventService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes snapshot then row", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockEventRepository)
		mRepo.On("FindByID", ctx, "e1").Return(&model.Event{ID: "e1", SnapshotPath: "snapshots/e1.jpg"}, nil)
		mStore.On("Delete", ctx, "snapshots/e1.jpg").Return(nil)
		mRepo.On("Delete", ctx, "e1").Return(nil)

		svc := NewEventService(mStore, mRepo)
		require.NoError(t, svc.Delete(ctx, "e1"))
		mStore.AssertExpectations(t)
		mRepo.AssertExpectations(t)
	})

	t.Run("no snapshot skips storage", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockEventRepository)
		mRepo.On("FindByID", ctx, "e1").Return(&model.Event{ID: "e1"}, nil)
		mRepo.On("Delete", ctx, "e1").Return(nil)

		svc := NewEventService(mStore, mRepo)
		require.NoError(t, svc.Delete(ctx, "e1"))
		mStore.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("storage failure keeps row", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockEventRepository)
		mRepo.On("FindByID", ctx, "e1").Return(&model.Event{ID: "e1", SnapshotPath: "snapshots/e1.jpg"}, nil)
		mStore.On("Delete", ctx, "snapshots/e1.jpg").Return(errors.New("boom"))

		svc := NewEventService(mStore, mRepo)
		err := svc.Delete(ctx, "e1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "delete snapshot")
		mRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("not found", func(t *testing.T) {
		mRepo := new(repoMocks.MockEventRepository)
		mRepo.On("FindByID", ctx, "nope").Return(nil, sql.ErrNoRows)

		svc := NewEventService(new(storeMocks.MockStorage), mRepo)
		assert.ErrorIs(t, svc.Delete(ctx, "nope"), ErrNotFound)
	})
}

func TestEventService_SnapshotURL(t *testing.T) {
	ctx := context.Background()
	expiry := 15 * time.Minute

	t.Run("success", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockEventRepository)
		mRepo.On("FindByID", ctx, "e1").Return(&model.Event{ID: "e1", SnapshotPath: "snapshots/e1.jpg"}, nil)
		mStore.On("PresignGet", ctx, "snapshots/e1.jpg", expiry).Return("https://minio/presigned", nil)

		svc := NewEventService(mStore, mRepo)
		url, err := svc.SnapshotURL(ctx, "e1", expiry)
		require.NoError(t, err)
		assert.Equal(t, "https://minio/presigned", url)
	})

	t.Run("no snapshot", func(t *testing.T) {
		mRepo := new(repoMocks.MockEventRepository)
		mRepo.On("FindByID", ctx, "e1").Return(&model.Event{ID: "e1"}, nil)

		svc := NewEventService(new(storeMocks.MockStorage), mRepo)
		_, err := svc.SnapshotURL(ctx, "e1", expiry)
		assert.ErrorIs(t, err, ErrNoSnapshot)
	})
}

func TestEventService_Snapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("streams content", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockEventRepository)
		mRepo.On("FindByID", ctx, "e1").Return(&model.Event{ID: "e1", SnapshotPath: "snapshots/e1.jpg"}, nil)
		mStore.On("Get", ctx, "snapshots/e1.jpg").Return(
			io.NopCloser(strings.NewReader("jpegbytes")),
			storage.ObjectInfo{Key: "snapshots/e1.jpg", Size: 9, ContentType: "image/jpeg"},
			nil,
		)

		svc := NewEventService(mStore, mRepo)
		rc, info, err := svc.Snapshot(ctx, "e1")
		require.NoError(t, err)
		defer rc.Close()

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "jpegbytes", string(data))
		assert.Equal(t, "image/jpeg", info.ContentType)
		mStore.AssertExpectations(t)
	})

	t.Run("no snapshot", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockEventRepository)
		mRepo.On("FindByID", ctx, "e1").Return(&model.Event{ID: "e1"}, nil)

		svc := NewEventService(mStore, mRepo)
		_, _, err := svc.Snapshot(ctx, "e1")
		assert.ErrorIs(t, err, ErrNoSnapshot)
		mStore.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("not found", func(t *testing.T) {
		mRepo := new(repoMocks.MockEventRepository)
		mRepo.On("FindByID", ctx, "e1").Return(nil, sql.ErrNoRows)

		svc := NewEventService(new(storeMocks.MockStorage), mRepo)
		_, _, err := svc.Snapshot(ctx, "e1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
