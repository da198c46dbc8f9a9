package presence

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Guillaume-slize/digitalsolitude/pkg/metrics"
)

type HeartbeatResult string

const (
	Alive           HeartbeatResult = "alive"
	ReconnectNeeded HeartbeatResult = "reconnect_needed"
)

// Options configures a Registry. Zero values get defaults.
type Options struct {
	StaleAfter time.Duration
	Clock      clockwork.Clock
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Recorder   *Recorder
}

const DefaultStaleAfter = 15 * time.Second

// Registry is the occupancy policy: it owns the store, decides when a
// membership change is announced, and serializes every broadcast pass.
type Registry struct {
	store      *Store
	bcast      *Broadcaster
	log        *slog.Logger
	metrics    *metrics.Metrics
	recorder   *Recorder
	clock      clockwork.Clock
	staleAfter time.Duration

	// emitMu orders evaluation and emission; store access has its own lock
	emitMu sync.Mutex
	state  State
	count  int
	closed bool
}

func NewRegistry(opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	st := NewStore(opts.Clock)
	return &Registry{
		store:      st,
		bcast:      NewBroadcaster(st, opts.Logger, opts.Metrics),
		log:        opts.Logger,
		metrics:    opts.Metrics,
		recorder:   opts.Recorder,
		clock:      opts.Clock,
		staleAfter: opts.StaleAfter,
		state:      Vacant,
	}
}

// Subscribe registers id with an open stream. The stream gets a status
// event before anything else, then the new occupancy is announced.
func (r *Registry) Subscribe(id string, s Stream, origin Origin) error {
	if id == "" {
		return ErrMissingIdentifier
	}

	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	replaced, n := r.store.Register(id, s, origin)
	if replaced != nil {
		replaced.Close()
		r.metrics.Evicted(metrics.ReasonReplaced, 1)
		r.log.Info("session.stream.replaced", "session", ShortID(id))
	}

	// a same-label count change is announced with status to everyone,
	// the newcomer included, so it needs no separate greeting
	if StateFor(n) != r.state || n == r.count {
		if err := s.Send(StatusEvent(n)); err != nil {
			s.Close()
			r.store.RemoveStream(id, s)
			r.metrics.Evicted(metrics.ReasonWriteFailure, 1)
		}
	}

	r.log.Info("session.subscribed", "session", ShortID(id), "addr", origin.Addr, "count", n)
	r.evaluateLocked("subscribe")
	return nil
}

// Heartbeat refreshes id. An unknown id is not created.
func (r *Registry) Heartbeat(id string) (HeartbeatResult, error) {
	if id == "" {
		return "", ErrMissingIdentifier
	}
	if !r.store.Touch(id) {
		r.metrics.Heartbeat(string(ReconnectNeeded))
		r.log.Debug("heartbeat.unknown", "session", ShortID(id))
		return ReconnectNeeded, nil
	}
	r.metrics.Heartbeat(string(Alive))
	return Alive, nil
}

// Disconnect handles a closed stream. Nothing happens if id has since
// been resubscribed with another stream.
func (r *Registry) Disconnect(id string, s Stream) {
	s.Close()

	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	if !r.store.RemoveStream(id, s) {
		return
	}
	r.metrics.Evicted(metrics.ReasonDisconnect, 1)
	r.log.Info("session.disconnected", "session", ShortID(id))
	r.evaluateLocked("disconnect")
}

// Leave removes id on the client's explicit request
func (r *Registry) Leave(id string) error {
	if id == "" {
		return ErrMissingIdentifier
	}

	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	sess, ok := r.store.Remove(id)
	if !ok {
		return nil
	}
	if sess.Stream != nil {
		sess.Stream.Close()
	}
	r.metrics.Evicted(metrics.ReasonLeave, 1)
	r.log.Info("session.left", "session", ShortID(id))
	r.evaluateLocked("leave")
	return nil
}

// Sweep evicts sessions idle past the staleness threshold and returns how many went
func (r *Registry) Sweep() int {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	evicted := r.store.EvictStale(r.staleAfter)
	if len(evicted) == 0 {
		return 0
	}
	now := r.clock.Now()
	for _, s := range evicted {
		if s.Stream != nil {
			s.Stream.Close()
		}
		r.log.Info("sweep.evicted", "session", ShortID(s.ID), "idle", now.Sub(s.LastSeen).Round(time.Millisecond))
	}
	r.metrics.Evicted(metrics.ReasonStale, len(evicted))
	r.evaluateLocked("stale")
	return len(evicted)
}

// Occupancy is the state derived from the current store size
func (r *Registry) Occupancy() (State, int) {
	n := r.store.Size()
	return StateFor(n), n
}

// Accepting is false once Shutdown has run
func (r *Registry) Accepting() bool {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	return !r.closed
}

// Sessions snapshots every record for diagnostics
func (r *Registry) Sessions() []Session { return r.store.Snapshot() }

// Shutdown tells every open stream the process is going away, then closes them.
// Later subscriptions are refused.
func (r *Registry) Shutdown() {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	r.bcast.Notify(ShutdownEvent())
	r.store.ForEachOpenStream(func(_ string, s Stream) { s.Close() })
	r.log.Info("registry.shutdown", "sessions", r.store.Size())
}

// evaluateLocked recomputes the occupancy and announces it. A label change
// goes to everyone as occupancy_changed, a bare count change as status.
// Streams that fail during the pass are removed, so it loops until stable.
// Caller holds emitMu.
func (r *Registry) evaluateLocked(cause string) {
	defer func() {
		r.metrics.Occupancy(r.store.Size(), r.store.OpenStreams(), r.state.Level())
	}()

	for !r.closed {
		n := r.store.Size()
		st := StateFor(n)

		var ev Event
		switch {
		case st != r.state:
			ev = ChangedEvent(st, n)
			r.recorder.Queue(Transition{From: r.state, To: st, Count: n, Cause: cause, At: r.clock.Now()})
			r.log.Info("occupancy.changed", "from", r.state, "to", st, "count", n, "cause", cause)
		case n != r.count:
			ev = StatusEvent(n)
		default:
			return
		}
		r.state, r.count = st, n

		if dropped := r.bcast.Notify(ev); len(dropped) == 0 {
			return
		}
		cause = metrics.ReasonWriteFailure
	}
}
