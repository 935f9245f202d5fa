// Package worker runs the detection pipeline off the request path. The
// HTTP handlers enqueue detections; a single goroutine drains the queue
// through the pipeline and hands emitted signals to the event service.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"seatwatch/internal/model"
	"seatwatch/internal/pipeline"
)

// ErrQueueFull is returned by Enqueue when the detection queue is at
// capacity. Callers surface it as backpressure instead of blocking.
var ErrQueueFull = errors.New("detection queue is full")

// SignalSink receives the signals produced by a pipeline run.
// service.EventService satisfies it.
type SignalSink interface {
	ProcessSignals(ctx context.Context, signals []model.Signal) ([]model.Event, error)
}

// Metrics holds the worker's prometheus instruments.
type Metrics struct {
	queued    prometheus.Counter
	rejected  prometheus.Counter
	processed prometheus.Counter
	failures  prometheus.Counter
	signals   *prometheus.CounterVec
	depth     prometheus.Gauge
}

// NewMetrics registers the worker metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		queued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detections_queued_total",
			Help: "Total number of detections accepted into the queue.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detections_rejected_total",
			Help: "Total number of detections rejected because the queue was full.",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detections_processed_total",
			Help: "Total number of detections run through the pipeline.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_persist_failures_total",
			Help: "Total number of pipeline runs whose signals failed to persist.",
		}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "event_signals_total",
			Help: "Total number of event signals emitted by the pipeline.",
		}, []string{"kind"}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "detection_queue_depth",
			Help: "Current number of detections waiting in the queue.",
		}),
	}

	for _, c := range []prometheus.Collector{m.queued, m.rejected, m.processed, m.failures, m.signals, m.depth} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Worker owns the detection queue and the current pipeline.
type Worker struct {
	queue   chan model.Detection
	sink    SignalSink
	metrics *Metrics

	mu sync.Mutex
	p  *pipeline.Pipeline
}

// New builds a worker with the given queue capacity.
func New(queueSize int, p *pipeline.Pipeline, sink SignalSink, metrics *Metrics) *Worker {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Worker{
		queue:   make(chan model.Detection, queueSize),
		sink:    sink,
		metrics: metrics,
		p:       p,
	}
}

// Enqueue hands a detection to the worker without blocking.
func (w *Worker) Enqueue(det model.Detection) error {
	select {
	case w.queue <- det:
		if w.metrics != nil {
			w.metrics.queued.Inc()
			w.metrics.depth.Set(float64(len(w.queue)))
		}
		return nil
	default:
		if w.metrics != nil {
			w.metrics.rejected.Inc()
		}
		return ErrQueueFull
	}
}

// SetPipeline swaps the pipeline; the next dequeued detection uses it.
// Business-logic state (seat map, open events) starts fresh.
func (w *Worker) SetPipeline(p *pipeline.Pipeline) {
	w.mu.Lock()
	w.p = p
	w.mu.Unlock()
}

// Run drains the queue until the context is canceled. Persist failures
// are logged and counted; the worker keeps going.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case det := <-w.queue:
			w.process(ctx, det)
		}
	}
}

func (w *Worker) process(ctx context.Context, det model.Detection) {
	w.mu.Lock()
	p := w.p
	w.mu.Unlock()

	signals := p.Run(det)

	if w.metrics != nil {
		w.metrics.processed.Inc()
		w.metrics.depth.Set(float64(len(w.queue)))
		for _, sig := range signals {
			w.metrics.signals.WithLabelValues(string(sig.Kind)).Inc()
		}
	}

	if len(signals) == 0 {
		return
	}

	events, err := w.sink.ProcessSignals(ctx, signals)
	if err != nil {
		if w.metrics != nil {
			w.metrics.failures.Inc()
		}
		logWorker("signal_persist_failed", map[string]any{
			"stream_id": det.StreamID,
			"frame_id":  det.FrameID,
			"error":     err.Error(),
		})
		return
	}

	logWorker("events_persisted", map[string]any{
		"stream_id": det.StreamID,
		"frame_id":  det.FrameID,
		"count":     len(events),
	})
}

func logWorker(event string, fields map[string]any) {
	entry := map[string]any{
		"ts":        time.Now().Format(time.RFC3339Nano),
		"component": "worker",
		"event":     event,
	}
	if _, ok := fields["error"]; ok {
		entry["level"] = "error"
	} else {
		entry["level"] = "info"
	}
	for k, v := range fields {
		entry[k] = v
	}
	if b, err := json.Marshal(entry); err == nil {
		log.SetFlags(0)
		log.Println(string(b))
	}
}
