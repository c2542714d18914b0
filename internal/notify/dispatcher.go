package notify

import (
	"context"
	"sync"
	"time"

	"github.com/otcheredev/clinicflow/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Dispatcher decouples publishers from sinks with a bounded queue drained
// by one worker. Publish never blocks: when the queue is full the event is
// dropped and counted.
type Dispatcher struct {
	queue   chan Event
	sinks   []Sink
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts a dispatcher delivering to sinks. Each delivery is
// bounded by timeout.
func NewDispatcher(queueSize int, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		queue:   make(chan Event, queueSize),
		sinks:   sinks,
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Publish enqueues evt without blocking
func (d *Dispatcher) Publish(_ context.Context, evt Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		metrics.NotifyDropped.Inc()
		return
	}
	select {
	case d.queue <- evt:
	default:
		metrics.NotifyDropped.Inc()
		log.Warn().
			Str("type", evt.Type).
			Str("clinic_id", evt.ClinicID.String()).
			Msg("Notification queue full, dropping event")
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for evt := range d.queue {
		for _, sink := range d.sinks {
			d.deliver(sink, evt)
		}
	}
}

func (d *Dispatcher) deliver(sink Sink, evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := sink.Deliver(ctx, evt); err != nil {
		metrics.NotifySinkErrors.WithLabelValues(sink.Name()).Inc()
		log.Warn().Err(err).
			Str("sink", sink.Name()).
			Str("type", evt.Type).
			Str("visit_id", evt.VisitID.String()).
			Msg("Notification delivery failed")
		return
	}
	metrics.NotifyDelivered.WithLabelValues(sink.Name()).Inc()
}

// Close stops accepting events, delivers what is queued and waits for the
// worker to exit or ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
