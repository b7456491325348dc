package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher forwards events to a Sink from a single background goroutine.
// A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool

	queue   chan Event
	stop    chan struct{}
	stopped sync.WaitGroup

	dropped   atomic.Uint64
	delivered atomic.Uint64
	closing   atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher, or returns nil when cfg.Enabled is false.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, cfg.BufferSize),
		stop:       make(chan struct{}),
	}
	d.stopped.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.stopped.Done()

	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	d.sink.Emit(context.Background(), ev)
	d.delivered.Add(1)
}

// Emit queues event. It never blocks when DropIfFull is set; otherwise it
// blocks until the event is queued, ctx ends, or the dispatcher closes.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close stops accepting events, delivers what is queued and waits for the
// goroutine to exit. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		d.stopped.Wait()
	})
}

// Dropped returns the number of events discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered returns the number of events handed to the sink.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
