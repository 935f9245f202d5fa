package model

import "time"

// Point is a single 2D coordinate in frame pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polygon is an ordered list of points. Bounding boxes use
// Type "quadrilateral" with the four corners listed clockwise starting
// at the top-left: (x1,y1) (x2,y1) (x2,y2) (x1,y2).
type Polygon struct {
	Type        string  `json:"type"`
	Coordinates []Point `json:"coordinates"`
}

// Quadrilateral builds a bounding-box polygon from its two extreme corners.
func Quadrilateral(x1, y1, x2, y2 float64) Polygon {
	return Polygon{
		Type: "quadrilateral",
		Coordinates: []Point{
			{X: x1, Y: y1},
			{X: x2, Y: y1},
			{X: x2, Y: y2},
			{X: x1, Y: y2},
		},
	}
}

// Prediction is one detected object within a frame.
type Prediction struct {
	ClassID     string       `json:"classId"`
	TrackID     string       `json:"trackId"`
	Confidence  float64      `json:"confidence"`
	BoundingBox Polygon      `json:"boundingBox"`
	Related     []Prediction `json:"related"`
}

// Detection is one frame's worth of predictions plus frame metadata.
// Frame optionally carries the encoded JPEG bytes of the source frame
// (base64 on the wire); it is used for event snapshots and may be nil.
type Detection struct {
	StreamID    string       `json:"streamId"`
	FrameID     string       `json:"frameId"`
	Timestamp   time.Time    `json:"timestamp"`
	Predictions []Prediction `json:"predictions"`
	Frame       []byte       `json:"frame,omitempty"`
}

// Clone returns a copy of the detection with its own predictions slice.
// The frame bytes are shared; callers never mutate them.
func (d Detection) Clone() Detection {
	out := d
	out.Predictions = make([]Prediction, len(d.Predictions))
	copy(out.Predictions, d.Predictions)
	return out
}
