package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/Guillaume-slize/digitalsolitude/pkg/metrics"
)

// TransitionSink receives occupancy transitions outside the broadcast path
type TransitionSink interface {
	Name() string
	RecordTransition(ctx context.Context, t Transition) error
}

const sinkTimeout = 5 * time.Second

// Recorder queues transitions without blocking the registry and hands
// them to the sinks from its own goroutine. A nil *Recorder drops everything.
type Recorder struct {
	queue   chan Transition
	sinks   []TransitionSink
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewRecorder(size int, log *slog.Logger, m *metrics.Metrics, sinks ...TransitionSink) *Recorder {
	if size <= 0 {
		size = 64
	}
	return &Recorder{queue: make(chan Transition, size), sinks: sinks, log: log, metrics: m}
}

// Queue adds t without blocking; it is dropped if the queue is full
func (r *Recorder) Queue(t Transition) {
	if r == nil || len(r.sinks) == 0 {
		return
	}
	select {
	case r.queue <- t:
	default:
		r.metrics.TransitionDropped()
		r.log.Warn("recorder.dropped", "to", t.To, "count", t.Count)
	}
}

// Run delivers queued transitions until ctx is cancelled
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case t := <-r.queue:
			r.deliver(ctx, t)
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Recorder) deliver(ctx context.Context, t Transition) {
	for _, sink := range r.sinks {
		sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := sink.RecordTransition(sctx, t)
		cancel()
		if err != nil {
			r.metrics.SinkError(sink.Name())
			r.log.Error("recorder.sink", "sink", sink.Name(), "err", err)
		}
	}
}
