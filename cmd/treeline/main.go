package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"

	"github.com/alexanderramin/treeline/internal/cli"
	"github.com/alexanderramin/treeline/internal/cli/formatter"
	"github.com/alexanderramin/treeline/internal/config"
	"github.com/alexanderramin/treeline/internal/db"
	"github.com/alexanderramin/treeline/internal/ledger"
	"github.com/alexanderramin/treeline/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.LoadConfig()

	// Determine DB path: env var or default ~/.treeline/treeline.db
	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("finding home directory: %w", err)
		}
		cfg.DBPath = filepath.Join(home, ".treeline", "treeline.db")
	}

	if !isatty.IsTerminal(os.Stdout.Fd()) {
		formatter.DisableColor()
	}

	logger := log.New()
	logger.SetOutput(os.Stderr)

	database, err := db.OpenDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	app := &cli.App{
		DB:       database,
		Ledger:   ledger.New(database, logger),
		Projects: repository.NewSQLiteProjectRepo(database),
		Config:   cfg,
		Logger:   logger,
	}

	return cli.NewRootCmd(app).Execute()
}
