package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"seatwatch/internal/inference"
	"seatwatch/internal/model"
	"seatwatch/internal/service"
	serviceMocks "seatwatch/internal/service/mocks"
	"seatwatch/internal/storage"
	"seatwatch/internal/worker"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubIngestor struct {
	err  error
	dets []model.Detection
}

func (s *stubIngestor) Enqueue(det model.Detection) error {
	if s.err != nil {
		return s.err
	}
	s.dets = append(s.dets, det)
	return nil
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIngestDetection(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		ing := &stubIngestor{}
		app := fiber.New()
		app.Post("/detections", IngestDetection(ing))

		det := model.Detection{
			StreamID: "cam-1",
			FrameID:  "42",
			Predictions: []model.Prediction{
				{ClassID: "chair", Confidence: 0.9, BoundingBox: model.Quadrilateral(10, 10, 40, 60)},
			},
		}

		req := httptest.NewRequest(http.MethodPost, "/detections", jsonBody(t, det))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		require.Len(t, ing.dets, 1)
		assert.Equal(t, "cam-1", ing.dets[0].StreamID)
		assert.Len(t, ing.dets[0].Predictions, 1)

		var body map[string]any
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, true, body["queued"])
		assert.Equal(t, "42", body["frameId"])
	})

	t.Run("invalid body", func(t *testing.T) {
		app := fiber.New()
		app.Post("/detections", IngestDetection(&stubIngestor{}))

		req := httptest.NewRequest(http.MethodPost, "/detections", bytes.NewReader([]byte("{not json")))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "INVALID_BODY", body.Error.Code)
	})

	t.Run("missing stream id", func(t *testing.T) {
		app := fiber.New()
		app.Post("/detections", IngestDetection(&stubIngestor{}))

		req := httptest.NewRequest(http.MethodPost, "/detections", jsonBody(t, model.Detection{FrameID: "1"}))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "STREAM_REQUIRED", body.Error.Code)
	})

	t.Run("queue full", func(t *testing.T) {
		app := fiber.New()
		app.Post("/detections", IngestDetection(&stubIngestor{err: worker.ErrQueueFull}))

		req := httptest.NewRequest(http.MethodPost, "/detections", jsonBody(t, model.Detection{StreamID: "cam-1"}))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "QUEUE_FULL", body.Error.Code)
	})
}

func TestIngestInference(t *testing.T) {
	conv, err := inference.NewConverter(map[int]string{56: "chair"}, map[string]string{"56": "chair"}, 0.25)
	require.NoError(t, err)

	t.Run("converts and enqueues", func(t *testing.T) {
		ing := &stubIngestor{}
		app := fiber.New()
		app.Post("/inferences", IngestInference(ing, conv))

		frame := inference.Frame{
			StreamID: "cam-1",
			FrameID:  "7",
			Boxes: []inference.Box{
				{X1: 10, Y1: 10, X2: 40, Y2: 60, Confidence: 0.8, ClassIndex: 56},
				{X1: 0, Y1: 0, X2: 5, Y2: 5, Confidence: 0.1, ClassIndex: 56},
			},
		}

		req := httptest.NewRequest(http.MethodPost, "/inferences", jsonBody(t, frame))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		require.Len(t, ing.dets, 1)
		require.Len(t, ing.dets[0].Predictions, 1)
		assert.Equal(t, "chair", ing.dets[0].Predictions[0].ClassID)
	})

	t.Run("missing stream id", func(t *testing.T) {
		app := fiber.New()
		app.Post("/inferences", IngestInference(&stubIngestor{}, conv))

		req := httptest.NewRequest(http.MethodPost, "/inferences", jsonBody(t, inference.Frame{FrameID: "7"}))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestListEvents(t *testing.T) {
	mockSvc := new(serviceMocks.MockEventService)
	app := fiber.New()
	app.Get("/events", ListEvents(mockSvc))

	t.Run("success", func(t *testing.T) {
		expectedRes := &service.EventListResult{
			Items: []model.Event{{ID: uuid.New().String(), StreamID: "cam-1", Kind: model.SignalStarted}},
			Total: 1,
		}
		mockSvc.On("List", mock.Anything, 10, 0, "cam-1").Return(expectedRes, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/events?limit=10&offset=0&stream_id=cam-1", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result service.EventListResult
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Len(t, result.Items, 1)
		assert.Equal(t, 1, result.Total)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/events?limit=abc", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "INVALID_LIMIT", body.Error.Code)
	})

	t.Run("invalid offset", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/events?offset=zzz", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "INVALID_OFFSET", body.Error.Code)
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, 10, 0, "").Return(nil, errors.New("service error")).Once()

		req := httptest.NewRequest(http.MethodGet, "/events", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestGetEvent(t *testing.T) {
	mockSvc := new(serviceMocks.MockEventService)
	app := fiber.New()
	app.Get("/events/:id", GetEvent(mockSvc))

	t.Run("success", func(t *testing.T) {
		id := uuid.New().String()
		expected := &model.Event{ID: id, StreamID: "cam-1", Kind: model.SignalEnded}
		mockSvc.On("Get", mock.Anything, id).Return(expected, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/events/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result model.Event
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, id, result.ID)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/events/not-a-uuid", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "INVALID_ID", body.Error.Code)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Get", mock.Anything, id).Return(nil, service.ErrNotFound).Once()

		req := httptest.NewRequest(http.MethodGet, "/events/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "NOT_FOUND", body.Error.Code)
		mockSvc.AssertExpectations(t)
	})
}

func TestGetEventSnapshot(t *testing.T) {
	mockSvc := new(serviceMocks.MockEventService)
	app := fiber.New()
	app.Get("/events/:id/snapshot", GetEventSnapshot(mockSvc))

	t.Run("success", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("SnapshotURL", mock.Anything, id, snapshotURLExpiry).
			Return("https://minio.local/snapshots/x.jpg", nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/events/"+id+"/snapshot", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "https://minio.local/snapshots/x.jpg", body["url"])
		mockSvc.AssertExpectations(t)
	})

	t.Run("no snapshot", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("SnapshotURL", mock.Anything, id, snapshotURLExpiry).
			Return("", service.ErrNoSnapshot).Once()

		req := httptest.NewRequest(http.MethodGet, "/events/"+id+"/snapshot", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "NO_SNAPSHOT", body.Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("SnapshotURL", mock.Anything, id, snapshotURLExpiry).
			Return("", service.ErrNotFound).Once()

		req := httptest.NewRequest(http.MethodGet, "/events/"+id+"/snapshot", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestDownloadEventSnapshot(t *testing.T) {
	mockSvc := new(serviceMocks.MockEventService)
	app := fiber.New()
	app.Get("/events/:id/snapshot/content", DownloadEventSnapshot(mockSvc))

	t.Run("streams content", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Snapshot", mock.Anything, id).Return(
			io.NopCloser(strings.NewReader("jpegbytes")),
			storage.ObjectInfo{Size: 9, ContentType: "image/jpeg"},
			nil,
		).Once()

		req := httptest.NewRequest(http.MethodGet, "/events/"+id+"/snapshot/content", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "jpegbytes", string(data))
		mockSvc.AssertExpectations(t)
	})

	t.Run("no snapshot", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Snapshot", mock.Anything, id).
			Return(nil, storage.ObjectInfo{}, service.ErrNoSnapshot).Once()

		req := httptest.NewRequest(http.MethodGet, "/events/"+id+"/snapshot/content", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "NO_SNAPSHOT", body.Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/events/oops/snapshot/content", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestDeleteEvent(t *testing.T) {
	mockSvc := new(serviceMocks.MockEventService)
	app := fiber.New()
	app.Delete("/events/:id", DeleteEvent(mockSvc))

	t.Run("success", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Delete", mock.Anything, id).Return(nil).Once()

		req := httptest.NewRequest(http.MethodDelete, "/events/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Delete", mock.Anything, id).Return(service.ErrNotFound).Once()

		req := httptest.NewRequest(http.MethodDelete, "/events/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestPipelineConfig(t *testing.T) {
	app := fiber.New()
	app.Get("/pipeline/config", PipelineConfig(func() fiber.Map {
		return fiber.Map{"logic": "seat", "classFilter": map[string]string{"56": "chair"}}
	}))

	req := httptest.NewRequest(http.MethodGet, "/pipeline/config", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	assert.Equal(t, "seat", body["logic"])
}
