package llm

import (
	"context"
	"io"
)

// eventStream adapts a producer goroutine to the Stream interface.
// The producer writes to the events channel and returns when done;
// its error (if any) is surfaced from Recv after the channel drains.
type eventStream struct {
	events chan Event
	errc   chan error
	cancel context.CancelFunc

	err      error
	finished bool
}

// newEventStream runs fn in a goroutine and returns a Stream over the events
// it emits. Closing the stream cancels fn's context and drains remaining
// events so the producer never blocks.
func newEventStream(ctx context.Context, fn func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{
		events: make(chan Event, 16),
		errc:   make(chan error, 1),
		cancel: cancel,
	}
	go func() {
		err := fn(ctx, s.events)
		s.errc <- err
		close(s.events)
	}()
	return s
}

func (s *eventStream) Recv() (Event, error) {
	event, ok := <-s.events
	if !ok {
		if !s.finished {
			s.finished = true
			s.err = <-s.errc
		}
		if s.err != nil {
			return Event{}, s.err
		}
		return Event{}, io.EOF
	}
	return event, nil
}

func (s *eventStream) Close() error {
	s.cancel()
	go func() {
		for range s.events {
		}
	}()
	return nil
}
