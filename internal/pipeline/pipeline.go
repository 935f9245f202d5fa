// Package pipeline turns per-frame detections into occupancy event
// signals. A pipeline is an ordered chain of filter steps followed by a
// business logic stage; filters narrow the predictions of a detection,
// the logic stage decides when events start and end.
package pipeline

import "seatwatch/internal/model"

// Step is a filter stage. It receives a detection and returns it with
// predictions possibly removed or rewritten.
type Step interface {
	Apply(det model.Detection) model.Detection
}

// Logic is the terminal stage. It owns per-stream state and emits event
// signals in response to detections.
type Logic interface {
	Evaluate(det model.Detection) []model.Signal
}

// Pipeline runs detections through its steps and logic in order.
// A Pipeline is not safe for concurrent use; the worker serializes
// detections through it.
type Pipeline struct {
	steps []Step
	logic Logic
}

// New builds a pipeline from filter steps and a logic stage.
func New(logic Logic, steps ...Step) *Pipeline {
	return &Pipeline{steps: steps, logic: logic}
}

// Run applies every step to the detection and hands the result to the
// logic stage. A nil return means no event activity for this frame.
func (p *Pipeline) Run(det model.Detection) []model.Signal {
	for _, s := range p.steps {
		det = s.Apply(det)
	}
	if p.logic == nil {
		return nil
	}
	return p.logic.Evaluate(det)
}
