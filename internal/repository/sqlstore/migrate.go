package sqlstore

import (
	"embed"
	"fmt"
	"path"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*/*.sql
var migrations embed.FS

type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) {
	log.Debug().Str("component", "migrate").Msgf(format, v...)
}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	log.Fatal().Str("component", "migrate").Msgf(format, v...)
}

// Migrate applies the embedded schema migrations for driver.
func Migrate(db *sqlx.DB, driver string) error {
	dialect := driver
	if driver == DriverSQLite {
		dialect = "sqlite3"
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.Up(db.DB, path.Join("migrations", driver)); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
