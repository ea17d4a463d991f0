package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/RoofStorm/tiger-engagement/internal/config"
	"github.com/RoofStorm/tiger-engagement/migrations"
	"github.com/RoofStorm/tiger-engagement/pkg/logger"
	"github.com/RoofStorm/tiger-engagement/pkg/postgres"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	steps := flag.Int("steps", 1, "Number of migrations to roll back with down")
	flag.Parse()

	if flag.NArg() != 1 || (flag.Arg(0) != "up" && flag.Arg(0) != "down") {
		fmt.Fprintln(os.Stderr, "Usage: migrate [-steps n] <up|down>")
		return exitFailure
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitFailure
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return exitFailure
	}
	defer logger.Sync(log)

	dsn := cfg.Postgres.PostgresDSN()
	if flag.Arg(0) == "up" {
		err = postgres.Migrate(dsn, migrations.FS, log)
	} else {
		err = postgres.MigrateDown(dsn, migrations.FS, *steps, log)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration %s failed: %v\n", flag.Arg(0), err)
		return exitFailure
	}
	return exitSuccess
}
