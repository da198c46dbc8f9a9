package store

import (
	"context"
	"embed"
	"log/slog"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

// migrationFiles lists the embedded .sql files in apply order
func migrationFiles() ([]string, error) {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// RunMigrations executes all embedded .sql files in order. Every file is idempotent.
func RunMigrations(ctx context.Context, p *Postgres, log *slog.Logger) error {
	names, err := migrationFiles()
	if err != nil {
		return err
	}
	for _, name := range names {
		b, err := migrations.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}
		if _, err := p.pool.Exec(ctx, string(b)); err != nil {
			return errors.Wrapf(err, "migration %s", name)
		}
		log.Info("migration.applied", "file", name)
	}
	return nil
}
