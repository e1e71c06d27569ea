package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/carelink/backend/internal/infrastructure/config"
	"github.com/carelink/backend/internal/infrastructure/logger"
	"github.com/carelink/backend/internal/infrastructure/persistence"
)

func main() {
	var logLevel string
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	switch command {
	case "up":
		if err := db.Migrate(); err != nil {
			log.Fatal("Migration failed", zap.Error(err))
		}
		log.Info("Schema migrated successfully",
			zap.String("database", cfg.Database.DBName),
		)

	default:
		log.Error("Unknown command", zap.String("command", command))
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`CareLink Schema Migration Tool

Usage:
  migrate [flags] <command>

Commands:
  up                    Create or update the schema for all persisted types

Flags:
  -log-level string     Log level: debug, info, warn, error (default: info)

Configuration comes from config.toml and CARELINK_* environment variables,
the same sources the server reads.`)
}
