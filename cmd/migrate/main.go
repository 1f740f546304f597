package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/noah-isme/capital-declarations-api/migrations"
	"github.com/noah-isme/capital-declarations-api/pkg/config"
	"github.com/noah-isme/capital-declarations-api/pkg/database"
	"github.com/noah-isme/capital-declarations-api/pkg/logger"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [up|status]\n", os.Args[0])
	}
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	switch command {
	case "up":
		applied, err := database.Migrate(ctx, db, migrations.FS)
		if err != nil {
			logr.Fatal("migration failed", zap.Error(err))
		}
		logr.Info("migrations applied", zap.Int("count", len(applied)), zap.Strings("files", applied))
	case "status":
		current, latest, err := database.MigrationStatus(ctx, db, migrations.FS)
		if err != nil {
			logr.Fatal("status failed", zap.Error(err))
		}
		logr.Info("schema version", zap.Int64("current", current), zap.Int64("latest", latest))
	default:
		flag.Usage()
		os.Exit(2)
	}
}
