package pipeline

import (
	"fmt"

	"github.com/google/uuid"

	"seatwatch/internal/geometry"
	"seatwatch/internal/model"
)

// seat is one tracked seat position. A seat is occupied when the chair
// at its position is hidden from the detector, i.e. no prediction box
// covers its center point.
type seat struct {
	center   model.Point
	occupied bool
}

// SeatLogicConfig tunes the seat map construction.
type SeatLogicConfig struct {
	// RowTolerance is the maximum vertical distance (pixels) between a
	// seat center and a row anchor for the seat to join that row.
	RowTolerance float64
	// MinSeatsPerRow discards rows with fewer seats; short rows are
	// usually detector noise on the first frame.
	MinSeatsPerRow int
}

// DefaultSeatLogicConfig matches the tuning the logic was calibrated with.
func DefaultSeatLogicConfig() SeatLogicConfig {
	return SeatLogicConfig{RowTolerance: 55, MinSeatsPerRow: 5}
}

// SeatLogic tracks a fixed map of seats and emits an event whenever any
// seat flips between occupied and vacant.
//
// The seat map is built once, from the first frame that carries
// predictions: seat centers are clustered into rows by vertical
// proximity, and undersized rows are dropped. On every later frame each
// seat is checked against the current predictions; a visible chair
// means the seat is vacant, a hidden one means somebody sits there.
// When at least one seat changes state the detection is annotated with
// a summary label and per-seat markers and a started+ended signal pair
// is emitted, so the event is complete within a single frame.
type SeatLogic struct {
	cfg  SeatLogicConfig
	rows [][]*seat
}

// NewSeatLogic builds the logic stage. Zero-value config fields fall
// back to the defaults.
func NewSeatLogic(cfg SeatLogicConfig) *SeatLogic {
	def := DefaultSeatLogicConfig()
	if cfg.RowTolerance <= 0 {
		cfg.RowTolerance = def.RowTolerance
	}
	if cfg.MinSeatsPerRow <= 0 {
		cfg.MinSeatsPerRow = def.MinSeatsPerRow
	}
	return &SeatLogic{cfg: cfg}
}

// SeatCount returns the number of tracked seats.
func (l *SeatLogic) SeatCount() int {
	n := 0
	for _, row := range l.rows {
		n += len(row)
	}
	return n
}

// OccupiedCount returns how many tracked seats are currently occupied.
func (l *SeatLogic) OccupiedCount() int {
	n := 0
	for _, row := range l.rows {
		for _, s := range row {
			if s.occupied {
				n++
			}
		}
	}
	return n
}

func (l *SeatLogic) Evaluate(det model.Detection) []model.Signal {
	if len(l.rows) == 0 {
		if len(det.Predictions) == 0 {
			return nil
		}
		l.rows = l.buildSeatMap(det)
		return l.emit(l.annotate(det))
	}

	if l.updateSeats(det) {
		return l.emit(l.annotate(det))
	}
	return nil
}

// buildSeatMap clusters prediction centers into rows. Each center joins
// every existing row whose anchor is within RowTolerance vertically;
// otherwise it anchors a new row. Rows below MinSeatsPerRow are dropped.
func (l *SeatLogic) buildSeatMap(det model.Detection) [][]*seat {
	var rows [][]*seat
	var anchors []model.Point

	for _, pred := range det.Predictions {
		center := geometry.Center(pred.BoundingBox)
		s := &seat{center: center}

		added := false
		for i, anchor := range anchors {
			if center.Y < anchor.Y+l.cfg.RowTolerance && center.Y > anchor.Y-l.cfg.RowTolerance {
				rows[i] = append(rows[i], s)
				added = true
			}
		}
		if !added {
			rows = append(rows, []*seat{s})
			anchors = append(anchors, center)
		}
	}

	kept := rows[:0]
	for _, row := range rows {
		if len(row) >= l.cfg.MinSeatsPerRow {
			kept = append(kept, row)
		}
	}
	return kept
}

// updateSeats reconciles every seat against the frame's predictions and
// reports whether any seat changed state.
func (l *SeatLogic) updateSeats(det model.Detection) bool {
	changed := false
	for _, row := range l.rows {
		for _, s := range row {
			if l.reconcileSeat(s, det) {
				changed = true
			}
		}
	}
	return changed
}

// reconcileSeat flips the seat state when the detector's view of its
// chair disagrees with the tracked state. A prediction covering the
// seat center means the chair is visible, so the seat is vacant.
func (l *SeatLogic) reconcileSeat(s *seat, det model.Detection) bool {
	for _, pred := range det.Predictions {
		if geometry.CoversX(pred.BoundingBox, s.center.X) && geometry.CoversY(pred.BoundingBox, s.center.Y) {
			if !s.occupied {
				return false
			}
			s.occupied = false
			return true
		}
	}

	if s.occupied {
		return false
	}
	s.occupied = true
	return true
}

// annotate appends overlay predictions so downstream renderers can draw
// the seat map state: one summary label plus a marker per seat.
func (l *SeatLogic) annotate(det model.Detection) model.Detection {
	out := det.Clone()

	total := l.SeatCount()
	occupied := l.OccupiedCount()
	out.Predictions = append(out.Predictions, overlayLabel(
		fmt.Sprintf("seats: %d | occupied: %d | vacant: %d", total, occupied, total-occupied)))

	for i, row := range l.rows {
		for _, s := range row {
			state := "vacant"
			if s.occupied {
				state = "occupied"
			}
			out.Predictions = append(out.Predictions, overlayMarker(s.center, fmt.Sprintf("R%d(%s)", i, state)))
		}
	}
	return out
}

// emit wraps the annotated detection in a started+ended pair sharing
// one event id, so seat changes become instantaneous events.
func (l *SeatLogic) emit(det model.Detection) []model.Signal {
	id := uuid.NewString()
	return []model.Signal{
		{Kind: model.SignalStarted, EventID: id, Detection: det},
		{Kind: model.SignalEnded, EventID: id, Detection: det},
	}
}

// overlayLabel is a pseudo-prediction spanning the frame, used to carry
// a text label to the renderer.
func overlayLabel(text string) model.Prediction {
	return model.Prediction{
		ClassID:     text,
		Confidence:  0.9,
		BoundingBox: model.Quadrilateral(0, 0, 1, 1),
		Related:     []model.Prediction{},
	}
}

// overlayMarker is a small pseudo-prediction at a seat center.
func overlayMarker(p model.Point, name string) model.Prediction {
	return model.Prediction{
		ClassID:     name,
		Confidence:  0.9,
		BoundingBox: model.Quadrilateral(p.X, p.Y, p.X+2, p.Y+2),
		Related:     []model.Prediction{},
	}
}
