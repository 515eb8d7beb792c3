package bridge

import "context"

// Stream is an iterator over the events of one query.
// Usage:
//
//	stream := client.QueryStream(ctx, "What's the weather in Paris?")
//	for stream.Next() {
//	    if d, ok := stream.Current().(*bridge.StreamEvent); ok {
//	        fmt.Print(d.Delta)
//	    }
//	}
//	res := stream.Result()
type Stream struct {
	events  chan Event
	done    chan struct{}
	current Event
	result  Result
	closed  bool
}

// QueryStream runs Query in a new goroutine and returns a Stream of its
// events. A query that runs ends with a *ResultEvent. If the caller stops
// reading, cancelling ctx lets the query finish without blocking on the
// stream.
func (c *Client) QueryStream(ctx context.Context, text string) *Stream {
	s := &Stream{
		events: make(chan Event, DefaultStreamBufferSize),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		defer close(s.events)
		s.result = c.query(ctx, text, func(e Event) {
			select {
			case s.events <- e:
			case <-ctx.Done():
			}
		})
	}()
	return s
}

// Next advances to the next event. It returns false once the query has
// finished and every event has been read.
func (s *Stream) Next() bool {
	if s.closed {
		return false
	}
	e, ok := <-s.events
	if !ok {
		s.closed = true
		return false
	}
	s.current = e
	return true
}

// Current returns the event read by the last call to Next.
func (s *Stream) Current() Event {
	return s.current
}

// Result waits for the query to finish, discarding unread events, and
// returns its outcome.
func (s *Stream) Result() Result {
	for s.Next() {
	}
	<-s.done
	return s.result
}

// Err returns the error carried by the finished query, or nil while it is
// still running.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.result.Err
	default:
		return nil
	}
}
