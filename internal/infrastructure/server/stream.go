package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Errors returned by the event stream.
var (
	ErrStreamClosed         = fmt.Errorf("event stream closed")
	ErrEventQueueFull       = fmt.Errorf("event queue full")
	ErrStreamingUnsupported = fmt.Errorf("streaming unsupported")
)

const eventQueueSize = 100

// eventStream is the server-to-client half of an SSE connection. It
// implements Channel; both transport bindings use it for their push
// streams.
type eventStream struct {
	writer  http.ResponseWriter
	flusher http.Flusher

	queue chan string
	done  chan struct{}
	once  sync.Once
}

// newEventStream prepares an SSE stream over w, writing the stream headers
// immediately.
func newEventStream(w http.ResponseWriter) (*eventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	flusher.Flush()

	return &eventStream{
		writer:  w,
		flusher: flusher,
		queue:   make(chan string, eventQueueSize),
		done:    make(chan struct{}),
	}, nil
}

// Send queues one message as an SSE "message" event.
func (s *eventStream) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.sendEvent("message", string(data))
}

// sendEvent queues a raw event with the given name and data.
func (s *eventStream) sendEvent(event, data string) error {
	frame := fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	select {
	case s.queue <- frame:
		return nil
	case <-s.done:
		return ErrStreamClosed
	default:
		return ErrEventQueueFull
	}
}

// Close stops the stream. Safe to call from any closure path, any number
// of times.
func (s *eventStream) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}

// run writes queued events to the client until the stream is closed or the
// request context is done. It must be called from the HTTP handler
// goroutine that owns the ResponseWriter.
func (s *eventStream) run(reqDone <-chan struct{}) {
	for {
		select {
		case frame := <-s.queue:
			_, _ = fmt.Fprint(s.writer, frame)
			s.flusher.Flush()
		case <-s.done:
			return
		case <-reqDone:
			s.Close()
			return
		}
	}
}
