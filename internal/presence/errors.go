package presence

import "github.com/cockroachdb/errors"

var (
	// ErrSessionNotFound means the session expired or never existed; the client must resubscribe.
	ErrSessionNotFound = errors.New("session not found")
	// ErrMissingIdentifier rejects requests without a session token.
	ErrMissingIdentifier = errors.New("session identifier required")
	// ErrStreamClosed is returned by Send once the stream has been closed.
	ErrStreamClosed = errors.New("stream closed")
	// ErrStreamBackpressure is returned by Send when the stream's outbox is full.
	ErrStreamBackpressure = errors.New("stream outbox full")
	// ErrRegistryClosed rejects subscriptions after Shutdown.
	ErrRegistryClosed = errors.New("registry shut down")
)

// IsStreamFailure reports whether err means the push channel is unusable
func IsStreamFailure(err error) bool {
	return errors.Is(err, ErrStreamClosed) || errors.Is(err, ErrStreamBackpressure)
}
