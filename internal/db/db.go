// internal/db/db.go
package db

import (
    "context"
    "database/sql"
    _ "embed"
    "fmt"

    _ "github.com/lib/pq"
    "github.com/sirupsen/logrus"

    "github.com/unclebandit/phishdrill-backend/internal/config"
)

//go:embed schema.sql
var schema string

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig, log logrus.FieldLogger) (*sql.DB, error) {
    log.WithFields(logrus.Fields{
        "db_host": cfg.Host,
        "db_name": cfg.Name,
    }).Info("connecting to database")

    db, err := sql.Open("postgres", cfg.DSN())
    if err != nil {
        return nil, fmt.Errorf("open database: %w", err)
    }

    if err = db.PingContext(ctx); err != nil {
        db.Close()
        return nil, fmt.Errorf("ping database: %w", err)
    }

    log.Info("connected to database")
    return db, nil
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
    if _, err := db.ExecContext(ctx, schema); err != nil {
        return fmt.Errorf("apply schema: %w", err)
    }
    return nil
}
