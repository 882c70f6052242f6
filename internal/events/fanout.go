package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nerrad567/servicedesk-core/internal/auth"
)

// DefaultSinkTimeout bounds each sink call.
const DefaultSinkTimeout = 2 * time.Second

// Sink receives session events.
type Sink interface {
	Name() string
	Write(ctx context.Context, ev auth.Event) error
}

// Detached is implemented by sinks whose delivery may finish after Record
// returns. Their latency never reaches the request.
type Detached interface {
	Detached() bool
}

// Fanout delivers every event to all of its sinks.
//
// Inline sinks run in order on the caller's goroutine, each bounded by the
// sink timeout, so their rows exist once Record returns. Detached sinks run
// in their own goroutine; Wait blocks until those have finished.
//
// Thread Safety:
//   - Safe for concurrent use; sinks must be safe for concurrent use too.
type Fanout struct {
	sinks   []Sink
	logger  *slog.Logger
	timeout time.Duration
	pending sync.WaitGroup
}

// NewFanout builds a Fanout. Nil sinks are skipped; a nil logger discards.
func NewFanout(logger *slog.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	f := &Fanout{logger: logger, timeout: DefaultSinkTimeout}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Len reports how many sinks are attached.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Record implements auth.EventRecorder.
//
// Sinks run detached from the caller's cancellation so a client hanging up
// mid-logout still leaves an audit entry, bounded by the sink timeout.
func (f *Fanout) Record(ctx context.Context, ev auth.Event) {
	base := context.WithoutCancel(ctx)
	for _, s := range f.sinks {
		if d, ok := s.(Detached); ok && d.Detached() {
			f.pending.Add(1)
			go func() {
				defer f.pending.Done()
				f.write(base, s, ev)
			}()
			continue
		}
		f.write(base, s, ev)
	}
}

// Wait blocks until every detached delivery started so far has finished.
// Call it before closing the clients the detached sinks publish through.
func (f *Fanout) Wait() {
	f.pending.Wait()
}

func (f *Fanout) write(base context.Context, s Sink, ev auth.Event) {
	ctx, cancel := context.WithTimeout(base, f.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("event sink panic recovered",
				"sink", s.Name(),
				"kind", string(ev.Kind),
				"panic", r,
			)
		}
	}()

	if err := s.Write(ctx, ev); err != nil {
		f.logger.Warn("event sink failed",
			"sink", s.Name(),
			"kind", string(ev.Kind),
			"error", err,
		)
	}
}
