package presence

import (
	"io"
	"log/slog"
	"sync"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStream records what it is sent
type fakeStream struct {
	mu     sync.Mutex
	events []Event
	closed bool
	fail   error
}

func (f *fakeStream) Send(ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrStreamClosed
	}
	if f.fail != nil {
		return f.fail
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeStream) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeStream) failWith(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

func (f *fakeStream) Events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func (f *fakeStream) Last() Event {
	evs := f.Events()
	if len(evs) == 0 {
		return Event{}
	}
	return evs[len(evs)-1]
}

func (f *fakeStream) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
