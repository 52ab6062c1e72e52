package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kapu/hololive-widget-go/internal/domain"
	"github.com/kapu/hololive-widget-go/internal/service/birthday"
	"github.com/kapu/hololive-widget-go/internal/service/database"
	"github.com/kapu/hololive-widget-go/internal/util"
	"go.uber.org/zap"
)

// CLI flags
var (
	input    = flag.String("input", "official.json", "Official dataset (JSON object keyed by talent id)")
	dryRun   = flag.Bool("dry-run", false, "Validate the dataset without touching the database")
	dbHost   = flag.String("db-host", "localhost", "PostgreSQL host")
	dbPort   = flag.Int("db-port", 5432, "PostgreSQL port")
	dbUser   = flag.String("db-user", "holo", "PostgreSQL user")
	dbPass   = flag.String("db-pass", "", "PostgreSQL password")
	dbName   = flag.String("db-name", "holo", "PostgreSQL database")
	logLevel = flag.String("log-level", "info", "Log level")
)

func main() {
	flag.Parse()

	logger, err := util.NewLogger(*logLevel, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Error("Import failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger) error {
	set, err := loadOfficial(*input)
	if err != nil {
		return err
	}

	_, stats := birthday.BuildIndex(birthday.Merge(set, nil).Records, time.Now())
	logger.Info("Official dataset loaded",
		zap.String("input", *input),
		zap.Int("records", set.Len()),
		zap.Int("indexable", stats.Indexed),
		zap.Int("unparsable_birthdays", stats.Skipped),
	)

	if *dryRun {
		logger.Info("[DRY RUN] No database changes made")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	postgres, err := database.NewPostgresService(ctx, database.PostgresConfig{
		Host:     *dbHost,
		Port:     *dbPort,
		User:     *dbUser,
		Password: *dbPass,
		Database: *dbName,
	}, logger)
	if err != nil {
		return err
	}
	defer postgres.Close()

	if err := postgres.Migrate(ctx); err != nil {
		return err
	}

	written, err := database.NewTalentRepository(postgres, logger).Upsert(ctx, set)
	if err != nil {
		return err
	}
	logger.Info("Import complete", zap.Int("upserted", written))
	return nil
}

func loadOfficial(path string) (*domain.OfficialSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	set := domain.NewOfficialSet()
	if err := json.Unmarshal(data, set); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return set, nil
}
