package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MySagra/mysagra-sub000/internal/common/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations lists the embedded schema files in apply order.
func Migrations() ([]string, error) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Migrate applies every embedded file. The files are idempotent, so running
// it against an up-to-date schema is a no-op.
func Migrate(ctx context.Context, pool *pgxpool.Pool, lg *logger.Logger) error {
	names, err := Migrations()
	if err != nil {
		return err
	}
	for _, name := range names {
		sql, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		lg.Info("migration_applied", map[string]any{"file": name})
	}
	return nil
}
