package pipeline

import (
	"seatwatch/internal/geometry"
	"seatwatch/internal/model"
)

// RegionOfInterest drops predictions whose foot point lies outside the
// configured polygon. The foot point is the midpoint of the bounding
// box base; for person detections this is where they touch the ground.
type RegionOfInterest struct {
	region []model.Point
}

// NewRegionOfInterest builds the step from a polygon in frame pixels.
func NewRegionOfInterest(region []model.Point) *RegionOfInterest {
	return &RegionOfInterest{region: region}
}

func (r *RegionOfInterest) Apply(det model.Detection) model.Detection {
	out := det.Clone()
	out.Predictions = out.Predictions[:0]
	for _, pred := range det.Predictions {
		foot := geometry.FootPoint(pred.BoundingBox)
		if geometry.Contains(r.region, foot) {
			out.Predictions = append(out.Predictions, pred)
		}
	}
	return out
}
