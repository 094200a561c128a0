package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"bookshelf/internal/config"
	"bookshelf/internal/storage/ch"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using existing environment variables")
	}

	cfg, err := config.LoadClickHouse()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Get command from arguments (default to "up")
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	log.Printf("Running migrations against %s:%d: %s", cfg.Host, cfg.Port, command)
	if err := ch.Migrate(context.Background(), cfg.DSN(), cfg.MigrationsDir, command, os.Args[min(len(os.Args), 2):]...); err != nil {
		log.Fatalf("Migration %s failed: %v", command, err)
	}
	log.Printf("Migration %s completed successfully", command)
}
