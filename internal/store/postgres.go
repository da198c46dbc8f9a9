package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guillaume-slize/digitalsolitude/internal/presence"
)

// Postgres journals occupancy transitions. The registry itself is never
// persisted; this is an audit trail only.
type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

var _ presence.TransitionSink = (*Postgres)(nil)

// NewPostgres connects to postgres, retrying with backoff, and returns a pool wrapper
func NewPostgres(ctx context.Context, url string, maxConns int, log *slog.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse PG_URL")
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "postgres pool")
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = time.Minute
	err = backoff.Retry(func() error {
		if err := pool.Ping(ctx); err != nil {
			log.Warn("postgres.ping", "err", err)
			return err
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres connect")
	}

	log.Info("postgres.connected", "maxConns", cfg.MaxConns)
	return &Postgres{pool: pool, log: log}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) Name() string { return "postgres" }

// RecordTransition appends t to the journal
func (p *Postgres) RecordTransition(ctx context.Context, t presence.Transition) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO occupancy_transitions (from_state, to_state, count, cause, at)
		VALUES ($1, $2, $3, $4, $5)
	`, string(t.From), string(t.To), t.Count, t.Cause, t.At)
	return errors.Wrap(err, "insert transition")
}

// RecentTransitions returns the newest journal rows first
func (p *Postgres) RecentTransitions(ctx context.Context, limit int) ([]TransitionRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, from_state, to_state, count, cause, at
		FROM occupancy_transitions
		ORDER BY at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query transitions")
	}
	defer rows.Close()

	out := make([]TransitionRow, 0, limit)
	for rows.Next() {
		var t TransitionRow
		if err := rows.Scan(&t.ID, &t.From, &t.To, &t.Count, &t.Cause, &t.At); err != nil {
			return nil, errors.Wrap(err, "scan transition")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
