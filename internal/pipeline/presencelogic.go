package pipeline

import (
	"time"

	"github.com/google/uuid"

	"seatwatch/internal/model"
)

// trackedEvent is an open event lifecycle with a frame-count TTL.
type trackedEvent struct {
	id                string
	detection         model.Detection
	numDetectedFrames int
	createdAt         time.Time
	ttl               int
	currentTTL        int
}

func newTrackedEvent(id string, det model.Detection, ttl int) *trackedEvent {
	return &trackedEvent{
		id:                id,
		detection:         det,
		numDetectedFrames: 1,
		createdAt:         time.Now(),
		ttl:               ttl,
		currentTTL:        ttl,
	}
}

// newDetection refreshes the event with the latest detection and resets
// its TTL.
func (e *trackedEvent) newDetection(det model.Detection) {
	e.detection = det
	e.numDetectedFrames++
	e.currentTTL = e.ttl
}

// noDetection burns one TTL frame.
func (e *trackedEvent) noDetection() {
	e.currentTTL--
}

func (e *trackedEvent) expired() bool {
	return e.currentTTL <= 0
}

// PresenceLogic opens an event when objects appear in the (already
// filtered) detection stream and closes it once they have been absent
// for TTL consecutive frames. The ended signal carries the last
// detection that refreshed the event.
type PresenceLogic struct {
	ttl     int
	current *trackedEvent
}

// NewPresenceLogic builds the logic stage. ttl is the number of empty
// frames tolerated before the event ends; non-positive values fall back
// to 5.
func NewPresenceLogic(ttl int) *PresenceLogic {
	if ttl <= 0 {
		ttl = 5
	}
	return &PresenceLogic{ttl: ttl}
}

func (l *PresenceLogic) Evaluate(det model.Detection) []model.Signal {
	present := len(det.Predictions) > 0

	if l.current == nil {
		if !present {
			return nil
		}
		l.current = newTrackedEvent(uuid.NewString(), det, l.ttl)
		return []model.Signal{{Kind: model.SignalStarted, EventID: l.current.id, Detection: det}}
	}

	if present {
		l.current.newDetection(det)
		return nil
	}

	l.current.noDetection()
	if !l.current.expired() {
		return nil
	}

	ended := model.Signal{Kind: model.SignalEnded, EventID: l.current.id, Detection: l.current.detection}
	l.current = nil
	return []model.Signal{ended}
}
