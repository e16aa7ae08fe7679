package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"sales_crm_backend/internal/events"
	"sales_crm_backend/internal/leads"
	"sales_crm_backend/platform/config"
	"sales_crm_backend/platform/db"
	"sales_crm_backend/platform/logger"
	"sales_crm_backend/platform/validator"

	"github.com/urfave/cli/v3"
)

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.Env)
	batchSize := int(cmd.Int("batch-size"))
	dryRun := cmd.Bool("dry-run")
	log.Info("starting lead rescore", "batchSize", batchSize, "dryRun", dryRun)

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	leadsModule := leads.NewModule(pool, events.NewInMemoryBus(log), validator.New(), cfg, log)
	result, err := leadsModule.Management().RescoreAll(ctx, batchSize, dryRun)
	if err != nil {
		return fmt.Errorf("rescore stopped after %d leads: %w", result.Scanned, err)
	}

	log.Info("lead rescore complete", "scanned", result.Scanned, "changed", result.Changed, "dryRun", dryRun)
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "lead-rescore",
		Usage:  "Recompute lead scores and store the derived priority where it drifted",
		Action: run,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "batch-size",
				Aliases: []string{"b"},
				Usage:   "Leads loaded per page",
				Value:   100,
				Sources: cli.EnvVars("RESCORE_BATCH_SIZE"),
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Count leads whose priority would change without writing",
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("lead rescore failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
