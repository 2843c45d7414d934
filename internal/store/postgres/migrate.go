package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate brings the journal schema up to date.
func Migrate(ctx context.Context, db *sql.DB, logger logrus.FieldLogger) error {
	if logger != nil {
		goose.SetLogger(logger.WithField("module", "store"))
	}
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}
	return nil
}
