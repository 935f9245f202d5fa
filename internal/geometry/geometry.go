// Package geometry provides the point-in-polygon and bounding-box math
// used by the detection pipeline. Coordinates are frame pixels.
package geometry

import (
	"math"

	"seatwatch/internal/model"
)

// Contains reports whether p lies strictly inside the polygon, using
// ray casting. Points on an edge count as outside, which is the
// behavior the region-of-interest filter depends on.
func Contains(poly []model.Point, p model.Point) bool {
	n := len(poly)
	if n < 3 {
		return false
	}

	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		a, b := poly[i], poly[j]

		if onSegment(a, b, p) {
			return false
		}

		if (a.Y > p.Y) != (b.Y > p.Y) {
			xCross := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

func onSegment(a, b, p model.Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if math.Abs(cross) > 1e-9 {
		return false
	}
	return p.X >= math.Min(a.X, b.X) && p.X <= math.Max(a.X, b.X) &&
		p.Y >= math.Min(a.Y, b.Y) && p.Y <= math.Max(a.Y, b.Y)
}

// FootPoint returns the midpoint of the bounding box base. For person
// detections this approximates the feet, which is the point the
// region-of-interest check is defined on. The x mean is truncated to
// whole pixels.
func FootPoint(box model.Polygon) model.Point {
	xMin, xMax := math.Inf(1), math.Inf(-1)
	yMax := math.Inf(-1)
	for _, pt := range box.Coordinates {
		xMin = math.Min(xMin, pt.X)
		xMax = math.Max(xMax, pt.X)
		yMax = math.Max(yMax, pt.Y)
	}
	return model.Point{X: math.Floor((xMin + xMax) / 2), Y: yMax}
}

// Center returns the midpoint of a quadrilateral bounding box.
func Center(box model.Polygon) model.Point {
	c := box.Coordinates
	if len(c) < 3 {
		return model.Point{}
	}
	return model.Point{
		X: (c[1].X-c[0].X)/2 + c[0].X,
		Y: (c[2].Y-c[1].Y)/2 + c[1].Y,
	}
}

// CoversX reports whether x falls within the horizontal span of the box.
func CoversX(box model.Polygon, x float64) bool {
	c := box.Coordinates
	if len(c) < 2 {
		return false
	}
	return x >= c[0].X && x <= c[1].X
}

// CoversY reports whether y falls within the vertical span of the box.
func CoversY(box model.Polygon, y float64) bool {
	c := box.Coordinates
	if len(c) < 3 {
		return false
	}
	return y >= c[1].Y && y <= c[2].Y
}
