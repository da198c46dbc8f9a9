package presence

import (
	"log/slog"

	"github.com/Guillaume-slize/digitalsolitude/pkg/metrics"
)

// Broadcaster pushes events to every open stream in the store
type Broadcaster struct {
	store   *Store
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewBroadcaster(store *Store, log *slog.Logger, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{store: store, log: log, metrics: m}
}

// Notify sends ev to every open stream from one snapshot. A failed push
// removes that session before Notify returns; the removed IDs are returned.
func (b *Broadcaster) Notify(ev Event) []string {
	var dropped []string
	b.store.ForEachOpenStream(func(id string, s Stream) {
		err := s.Send(ev)
		if err == nil {
			return
		}
		s.Close()
		if b.store.RemoveStream(id, s) {
			dropped = append(dropped, id)
		}
		if IsStreamFailure(err) {
			b.log.Debug("broadcast.drop", "session", ShortID(id), "err", err)
		} else {
			b.log.Warn("broadcast.send", "session", ShortID(id), "err", err)
		}
	})
	b.metrics.Broadcast(string(ev.Type))
	b.metrics.Evicted(metrics.ReasonWriteFailure, len(dropped))
	return dropped
}

// ShortID trims a session token for logs
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
