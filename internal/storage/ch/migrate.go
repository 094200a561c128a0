package ch

import (
	"context"
	"database/sql"
	"fmt"

	// registers the "clickhouse" database/sql driver used by goose
	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/pressly/goose/v3"
)

// MigrationCommands lists the goose commands Migrate understands
var MigrationCommands = []string{"up", "down", "status", "version", "create"}

// Migrate runs a goose command against the database behind dsn.
// "create" takes the migration name as its only argument.
func Migrate(ctx context.Context, dsn, dir, command string, args ...string) error {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := goose.SetDialect("clickhouse"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	switch command {
	case "up":
		return goose.UpContext(ctx, db, dir)
	case "down":
		return goose.DownContext(ctx, db, dir)
	case "status":
		return goose.StatusContext(ctx, db, dir)
	case "version":
		version, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		fmt.Printf("Current migration version: %d\n", version)
		return nil
	case "create":
		if len(args) != 1 {
			return fmt.Errorf("usage: migrate create <migration_name>")
		}
		return goose.Create(db, dir, args[0], "sql")
	default:
		return fmt.Errorf("unknown command: %s (available: %v)", command, MigrationCommands)
	}
}
