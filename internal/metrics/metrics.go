// Package metrics delivers per-update training diagnostics to pluggable
// sinks. Emission is a best-effort side channel: the training loop never
// blocks on a sink, and a dropped record never affects the run.
package metrics

import "sync"

// Values is one update step's flattened metric mapping: scalar fields plus
// namespaced diagnostics such as "dormancy/actor_0".
type Values map[string]float64

// Record is one emitted update's metrics.
type Record struct {
	Update int
	Values Values
}

// Sink receives per-update metrics. Implementations must tolerate Emit
// being called from a single goroutine and Close being called once after
// the last Emit.
type Sink interface {
	Emit(update int, values Values)
	Close() error
}

// Multi fans one emission out to several sinks.
type Multi []Sink

func (m Multi) Emit(update int, values Values) {
	for _, s := range m {
		s.Emit(update, values)
	}
}

func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Dispatcher decouples the training loop from a sink with a buffered
// channel and a delivery goroutine. When the buffer is full the record is
// dropped rather than blocking the trainer.
type Dispatcher struct {
	ch   chan Record
	done chan struct{}
	once sync.Once
	sink Sink
}

// NewDispatcher starts a dispatcher delivering to sink with the given
// buffer capacity.
func NewDispatcher(sink Sink, buffer int) *Dispatcher {
	d := &Dispatcher{
		ch:   make(chan Record, buffer),
		done: make(chan struct{}),
		sink: sink,
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	for rec := range d.ch {
		d.sink.Emit(rec.Update, rec.Values)
	}
	close(d.done)
}

// Emit enqueues the record, dropping it if the buffer is full.
func (d *Dispatcher) Emit(update int, values Values) {
	select {
	case d.ch <- Record{Update: update, Values: values}:
	default:
	}
}

// Close drains pending records, closes the underlying sink, and returns its
// error.
func (d *Dispatcher) Close() error {
	d.once.Do(func() {
		close(d.ch)
	})
	<-d.done
	return d.sink.Close()
}
