// Command migrate runs goose commands against the configured database using
// the migrations embedded in the server binary.
//
//	migrate up
//	migrate status
//	migrate down-to 20261001090000
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"persediaan/backend/internal/config"
	"persediaan/backend/internal/logger"
	"persediaan/backend/internal/migrate"
	pgstore "persediaan/backend/internal/store/postgres"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate <up|down|status|version|down-to|up-to> [args]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: "persediaan-migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      "console",
	})
	ctx := logg.WithField(context.Background(), "command", os.Args[1])

	if cfg.DB.URL == "" {
		logg.Error(ctx, "database URL is not set", fmt.Errorf("%s_DATABASE_URL is empty", config.EnvPrefix))
		os.Exit(1)
	}
	if err := migrate.Validate(); err != nil {
		logg.Error(ctx, "embedded migrations are invalid", err)
		os.Exit(1)
	}

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pg, err := pgstore.New(openCtx, cfg.DB)
	if err != nil {
		logg.Error(ctx, "connect postgres", err)
		os.Exit(1)
	}
	defer pg.Close()

	if err := migrate.Run(ctx, pg.DB(), os.Args[1], os.Args[2:]...); err != nil {
		logg.Error(ctx, "migration failed", err)
		pg.Close()
		os.Exit(1)
	}
	logg.Info(ctx, "migration command completed")
}
