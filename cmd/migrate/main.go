package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/factuurly/factuurly/internal/config"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Print migration SQL without executing it")
	dir := flag.String("dir", "migrations", "Directory containing .sql migration files")
	flag.Parse()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(*dir, "*.sql"))
	if err != nil {
		logger.Fatalw("Failed to list migration files", "error", err)
	}
	if len(files) == 0 {
		logger.Fatalw("No migration files found", "dir", *dir)
	}
	sort.Strings(files)

	if *dryRun {
		for _, file := range files {
			sql, err := os.ReadFile(file)
			if err != nil {
				logger.Fatalw("Failed to read migration", "file", file, "error", err)
			}
			fmt.Printf("-- %s\n%s\n", file, sql)
		}
		return
	}

	logger.Infow("Connecting to database", "host", cfg.Postgres.Host)
	db, err := sqlx.Connect("postgres", cfg.Postgres.GetDSN())
	if err != nil {
		logger.Fatalw("Failed to connect to postgres", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, file := range files {
		sql, err := os.ReadFile(file)
		if err != nil {
			logger.Fatalw("Failed to read migration", "file", file, "error", err)
		}
		logger.Infow("Applying migration", "file", file)
		if _, err := db.ExecContext(ctx, string(sql)); err != nil {
			logger.Fatalw("Migration failed", "file", file, "error", err)
		}
	}

	logger.Info("Migrations completed successfully")
}
