package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/Guillaume-slize/digitalsolitude/internal/presence"
)

// SSE is a Server-Sent Events push channel. Events go out as unnamed
// "data:" frames carrying the JSON event.
type SSE struct {
	*outbox
	w         io.Writer
	flusher   http.Flusher
	keepalive time.Duration
}

// NewSSE writes the event-stream headers and returns the stream
func NewSSE(w http.ResponseWriter, buffer int, keepalive time.Duration) (*SSE, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("sse: response writer cannot flush")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSE{outbox: newOutbox(buffer), w: w, flusher: flusher, keepalive: keepalive}, nil
}

// Serve runs the writer loop; call it from the request goroutine
func (s *SSE) Serve(ctx context.Context) error {
	return s.pump(ctx, s.keepalive, s.write, s.ping)
}

// Reject writes ev straight away and closes the stream. Used before Serve.
func (s *SSE) Reject(ev presence.Event) error {
	defer s.Close()
	return s.write(context.Background(), ev)
}

func (s *SSE) write(_ context.Context, ev presence.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "sse: encode event")
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return errors.Wrap(err, "sse: write")
	}
	s.flusher.Flush()
	return nil
}

func (s *SSE) ping(context.Context) error {
	if _, err := io.WriteString(s.w, ": keepalive\n\n"); err != nil {
		return errors.Wrap(err, "sse: keepalive")
	}
	s.flusher.Flush()
	return nil
}
