// Package inference converts raw object-detector output into domain
// predictions. The input format is the flat xyxy row emitted by
// YOLO-family models: [x1, y1, x2, y2, confidence, classIndex].
package inference

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"seatwatch/internal/model"
)

// Box is one raw detector output row.
type Box struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
	ClassIndex int     `json:"classIndex"`
}

// Frame is one frame of raw detector output plus frame metadata.
type Frame struct {
	StreamID  string    `json:"streamId"`
	FrameID   string    `json:"frameId"`
	Timestamp time.Time `json:"timestamp"`
	Boxes     []Box     `json:"boxes"`
	Frame     []byte    `json:"frame,omitempty"`
}

// Converter translates raw detector output into model.Detection values,
// applying a confidence threshold and an optional class allow-list.
type Converter struct {
	classNames map[int]string
	allowed    map[int]struct{}
	confidence float64
}

var ErrNoClassNames = errors.New("class name table is required")

// NewConverter builds a converter.
//   - classNames maps the model's class index to its label.
//   - classes optionally restricts output to the given class ids
//     (keys of the usual id -> name map); nil means all classes.
//   - confidence below or equal zero falls back to 0.25.
func NewConverter(classNames map[int]string, classes map[string]string, confidence float64) (*Converter, error) {
	if len(classNames) == 0 {
		return nil, ErrNoClassNames
	}
	if confidence <= 0 {
		confidence = 0.25
	}

	c := &Converter{classNames: classNames, confidence: confidence}
	if len(classes) > 0 {
		c.allowed = make(map[int]struct{}, len(classes))
		for id := range classes {
			idx, err := strconv.Atoi(id)
			if err != nil {
				return nil, fmt.Errorf("class id %q is not numeric: %w", id, err)
			}
			c.allowed[idx] = struct{}{}
		}
	}
	return c, nil
}

// Convert turns one raw frame into a detection. Boxes below the
// confidence threshold, outside the allow-list, or with an unknown
// class index are dropped.
func (c *Converter) Convert(f Frame) model.Detection {
	preds := make([]model.Prediction, 0, len(f.Boxes))
	for _, b := range f.Boxes {
		if b.Confidence < c.confidence {
			continue
		}
		if c.allowed != nil {
			if _, ok := c.allowed[b.ClassIndex]; !ok {
				continue
			}
		}
		name, ok := c.classNames[b.ClassIndex]
		if !ok {
			continue
		}
		preds = append(preds, model.Prediction{
			ClassID:     name,
			Confidence:  b.Confidence,
			BoundingBox: model.Quadrilateral(b.X1, b.Y1, b.X2, b.Y2),
			Related:     []model.Prediction{},
		})
	}

	return model.Detection{
		StreamID:    f.StreamID,
		FrameID:     f.FrameID,
		Timestamp:   f.Timestamp,
		Predictions: preds,
		Frame:       f.Frame,
	}
}
