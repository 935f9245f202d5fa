package pipeline

import "seatwatch/internal/model"

// ClassFilter keeps only predictions belonging to the configured
// classes. The map is class id -> class name (for example "56" ->
// "chair"); a prediction passes when its classId matches either side,
// since upstream converters may emit numeric ids or resolved names.
type ClassFilter struct {
	allowed map[string]struct{}
}

// NewClassFilter builds the step from an id -> name class map.
func NewClassFilter(classes map[string]string) *ClassFilter {
	allowed := make(map[string]struct{}, 2*len(classes))
	for id, name := range classes {
		allowed[id] = struct{}{}
		allowed[name] = struct{}{}
	}
	return &ClassFilter{allowed: allowed}
}

func (f *ClassFilter) Apply(det model.Detection) model.Detection {
	out := det.Clone()
	out.Predictions = out.Predictions[:0]
	for _, pred := range det.Predictions {
		if _, ok := f.allowed[pred.ClassID]; ok {
			out.Predictions = append(out.Predictions, pred)
		}
	}
	return out
}
