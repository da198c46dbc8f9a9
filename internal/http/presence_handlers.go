package httpx

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/Guillaume-slize/digitalsolitude/internal/presence"
	"github.com/Guillaume-slize/digitalsolitude/internal/stream"
	"github.com/Guillaume-slize/digitalsolitude/pkg/ratelimit"
)

const maxSessionIDLen = 128

type PresenceAPI struct {
	Registry          *presence.Registry
	Log               *slog.Logger
	StreamBuffer      int
	Keepalive         time.Duration
	HeartbeatInterval time.Duration
	WSOrigins         []string
}

type heartbeatResp struct {
	Status presence.HeartbeatResult `json:"status"`
}

type sessionResp struct {
	Session             string `json:"session"`
	HeartbeatIntervalMs int64  `json:"heartbeatIntervalMs"`
}

type occupancyResp struct {
	State presence.State `json:"state"`
	Count int            `json:"count"`
}

// Events subscribes the caller over Server-Sent Events
func (a *PresenceAPI) Events(w http.ResponseWriter, r *http.Request) {
	sse, err := stream.NewSSE(w, a.StreamBuffer, a.Keepalive)
	if err != nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := sessionID(r)
	if err := a.Registry.Subscribe(id, sse, originOf(r)); err != nil {
		_ = sse.Reject(rejection(err))
		return
	}
	defer a.Registry.Disconnect(id, sse)

	if err := sse.Serve(r.Context()); err != nil && !errors.Is(err, context.Canceled) {
		a.Log.Debug("sse.closed", "session", presence.ShortID(id), "err", err)
	}
}

// WS subscribes the caller over a websocket
func (a *PresenceAPI) WS(w http.ResponseWriter, r *http.Request) {
	ws, err := stream.Accept(w, r, a.WSOrigins)
	if err != nil {
		a.Log.Warn("ws.accept", "err", err)
		return
	}
	c := stream.NewConn(ws, a.StreamBuffer, a.Keepalive)

	id := sessionID(r)
	if err := a.Registry.Subscribe(id, c, originOf(r)); err != nil {
		_ = c.Reject(r.Context(), rejection(err))
		return
	}
	defer a.Registry.Disconnect(id, c)

	if err := c.Serve(r.Context()); err != nil && !errors.Is(err, context.Canceled) {
		a.Log.Debug("ws.closed", "session", presence.ShortID(id), "err", err)
	}
	_ = c.Hangup()
}

// Heartbeat refreshes the caller's session
func (a *PresenceAPI) Heartbeat(w http.ResponseWriter, r *http.Request) {
	res, err := a.Registry.Heartbeat(sessionID(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, heartbeatResp{Status: res})
}

// Leave drops the caller's session right away (page unload beacon)
func (a *PresenceAPI) Leave(w http.ResponseWriter, r *http.Request) {
	if err := a.Registry.Leave(sessionID(r)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session issues a fresh random session token
func (a *PresenceAPI) Session(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, sessionResp{
		Session:             uuid.NewString(),
		HeartbeatIntervalMs: a.HeartbeatInterval.Milliseconds(),
	})
}

// Occupancy reports the current state for the page's initial render
func (a *PresenceAPI) Occupancy(w http.ResponseWriter, _ *http.Request) {
	st, n := a.Registry.Occupancy()
	writeJSON(w, occupancyResp{State: st, Count: n})
}

// sessionID reads the token from ?session= or a JSON body {"session": ...}
func sessionID(r *http.Request) string {
	id := strings.TrimSpace(r.URL.Query().Get("session"))
	if id == "" && r.Method == http.MethodPost && r.Body != nil {
		var body struct {
			Session string `json:"session"`
		}
		_ = json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&body)
		id = strings.TrimSpace(body.Session)
	}
	if len(id) > maxSessionIDLen {
		return ""
	}
	return id
}

func originOf(r *http.Request) presence.Origin {
	return presence.Origin{Addr: ratelimit.ClientIP(r), UserAgent: r.UserAgent()}
}

// rejection is the last event a refused stream sees
func rejection(err error) presence.Event {
	if errors.Is(err, presence.ErrRegistryClosed) {
		return presence.ShutdownEvent()
	}
	return presence.ErrorEvent(err.Error())
}

// send JSON with proper headers
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
