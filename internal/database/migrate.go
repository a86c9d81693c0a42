package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations
var migrations embed.FS

// Migrate runs the pending goose migrations for the pool's dialect.
func Migrate(ctx context.Context, db *DB) error {
	dialect := goose.DialectSQLite3
	if db.dialect == DialectPostgres {
		dialect = goose.DialectPostgres
	}

	fsys, err := fs.Sub(migrations, "migrations/"+string(db.dialect))
	if err != nil {
		return fmt.Errorf("opening migrations: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	for _, r := range results {
		log.Info().Str("migration", r.Source.Path).Int64("version", r.Source.Version).Dur("took", r.Duration).Msg("Applied migration")
	}
	return nil
}
