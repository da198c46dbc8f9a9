package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/Guillaume-slize/digitalsolitude/internal/presence"
	"github.com/Guillaume-slize/digitalsolitude/internal/store"
	"github.com/Guillaume-slize/digitalsolitude/pkg/auth"
)

const operatorTokenTTL = time.Hour

// TransitionLister reads the occupancy journal
type TransitionLister interface {
	RecentTransitions(ctx context.Context, limit int) ([]store.TransitionRow, error)
}

// AdminAPI is the operator diagnostics surface
type AdminAPI struct {
	Registry *presence.Registry
	JWT      *auth.JWT
	Operator *auth.Operator   // nil disables login
	Journal  TransitionLister // nil when no journal is configured
}

type loginReq struct {
	Password string `json:"password"`
}

type tokenResp struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type sessionDTO struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"createdAt"`
	LastSeen  time.Time       `json:"lastSeen"`
	IdleMs    int64           `json:"idleMs"`
	Streaming bool            `json:"streaming"`
	Origin    presence.Origin `json:"origin"`
}

type sessionsResp struct {
	State    presence.State `json:"state"`
	Count    int            `json:"count"`
	Sessions []sessionDTO   `json:"sessions"`
}

// Login verifies the operator password and returns a JWT
func (a *AdminAPI) Login(w http.ResponseWriter, r *http.Request) {
	if a.Operator == nil {
		http.NotFound(w, r)
		return
	}
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	if err := a.Operator.Verify(req.Password); err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	tok, err := a.JWT.Sign(auth.OperatorSubject, operatorTokenTTL)
	if err != nil {
		http.Error(w, "token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, tokenResp{Token: tok, ExpiresAt: time.Now().Add(operatorTokenTTL).UTC()})
}

// Sessions lists every session in the registry
func (a *AdminAPI) Sessions(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	sessions := a.Registry.Sessions()
	st := presence.StateFor(len(sessions))

	writeJSON(w, sessionsResp{
		State: st,
		Count: len(sessions),
		Sessions: lo.Map(sessions, func(s presence.Session, _ int) sessionDTO {
			return sessionDTO{
				ID:        s.ID,
				CreatedAt: s.CreatedAt,
				LastSeen:  s.LastSeen,
				IdleMs:    now.Sub(s.LastSeen).Milliseconds(),
				Streaming: s.Streaming(),
				Origin:    s.Origin,
			}
		}),
	})
}

// Transitions returns recent journal rows (?limit=, default 100)
func (a *AdminAPI) Transitions(w http.ResponseWriter, r *http.Request) {
	if a.Journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := a.Journal.RecentTransitions(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}
