package handler

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"seatwatch/internal/inference"
	"seatwatch/internal/model"
	"seatwatch/internal/service"
	"seatwatch/internal/worker"
)

const snapshotURLExpiry = 15 * time.Minute

// Ingestor is the slice of the worker the handlers need.
type Ingestor interface {
	Enqueue(det model.Detection) error
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, db *sql.DB, evSvc service.EventService, ing Ingestor, conv *inference.Converter, ucInfo func() fiber.Map) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	app.Post("/detections", IngestDetection(ing))
	app.Post("/inferences", IngestInference(ing, conv))

	app.Get("/events", ListEvents(evSvc))
	app.Get("/events/:id", GetEvent(evSvc))
	app.Get("/events/:id/snapshot", GetEventSnapshot(evSvc))
	app.Get("/events/:id/snapshot/content", DownloadEventSnapshot(evSvc))
	app.Delete("/events/:id", DeleteEvent(evSvc))

	app.Get("/pipeline/config", PipelineConfig(ucInfo))
}

// HealthCheck reports readiness; it checks DB connectivity only.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a simple liveness probe.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// IngestDetection accepts a JSON detection and enqueues it for the
// pipeline worker. Processing is asynchronous: a 202 means accepted,
// not that any event was emitted.
func IngestDetection(ing Ingestor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var det model.Detection
		if err := c.BodyParser(&det); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "cannot parse detection")
		}
		if det.StreamID == "" {
			return writeError(c, fiber.StatusBadRequest, "STREAM_REQUIRED", "streamId is required")
		}
		return enqueue(c, ing, det)
	}
}

// IngestInference accepts raw detector output and converts it into a
// detection before enqueueing.
func IngestInference(ing Ingestor, conv *inference.Converter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var frame inference.Frame
		if err := c.BodyParser(&frame); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "cannot parse inference frame")
		}
		if frame.StreamID == "" {
			return writeError(c, fiber.StatusBadRequest, "STREAM_REQUIRED", "streamId is required")
		}
		return enqueue(c, ing, conv.Convert(frame))
	}
}

func enqueue(c *fiber.Ctx, ing Ingestor, det model.Detection) error {
	if err := ing.Enqueue(det); err != nil {
		if errors.Is(err, worker.ErrQueueFull) {
			return writeError(c, fiber.StatusServiceUnavailable, "QUEUE_FULL", "detection queue is full")
		}
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"queued":  true,
		"frameId": det.FrameID,
	})
}

// ListEvents returns a page of events, optionally filtered by stream.
func ListEvents(evSvc service.EventService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := evSvc.List(c.UserContext(), limit, offset, c.Query("stream_id"))
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(res)
	}
}

// GetEvent returns a single event by ID.
func GetEvent(evSvc service.EventService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		ev, err := evSvc.Get(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "event not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(ev)
	}
}

// GetEventSnapshot returns a presigned URL for the event's frame snapshot.
func GetEventSnapshot(evSvc service.EventService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		url, err := evSvc.SnapshotURL(c.UserContext(), id, snapshotURLExpiry)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrNotFound):
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "event not found")
			case errors.Is(err, service.ErrNoSnapshot):
				return writeError(c, fiber.StatusNotFound, "NO_SNAPSHOT", "event has no snapshot")
			default:
				return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}
		return c.JSON(fiber.Map{"url": url})
	}
}

// DownloadEventSnapshot streams the snapshot content directly, for
// clients that cannot reach the object storage endpoint a presigned
// URL points at.
func DownloadEventSnapshot(evSvc service.EventService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		rc, info, err := evSvc.Snapshot(c.UserContext(), id)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrNotFound):
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "event not found")
			case errors.Is(err, service.ErrNoSnapshot):
				return writeError(c, fiber.StatusNotFound, "NO_SNAPSHOT", "event has no snapshot")
			default:
				return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}
		if info.ContentType != "" {
			c.Set(fiber.HeaderContentType, info.ContentType)
		}
		if info.Size > 0 {
			return c.SendStream(rc, int(info.Size))
		}
		return c.SendStream(rc)
	}
}

// DeleteEvent removes an event and its snapshot.
func DeleteEvent(evSvc service.EventService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := evSvc.Delete(c.UserContext(), id); err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "event not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// PipelineConfig exposes the currently active use-case configuration.
// ucInfo is supplied by main so a config reload is reflected here.
func PipelineConfig(ucInfo func() fiber.Map) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(ucInfo())
	}
}
