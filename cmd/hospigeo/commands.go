package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jobrunner/hospigeo/internal/app"
	"github.com/jobrunner/hospigeo/internal/domain"
)

var reindexCmd = &cobra.Command{
	Use:       "reindex <entity-type>",
	Short:     "Rebuild one search index and swap its alias",
	Args:      cobra.ExactArgs(1),
	ValidArgs: entityTypeNames(),
	RunE: func(_ *cobra.Command, args []string) error {
		t, err := domain.ParseEntityType(args[0])
		if err != nil {
			return err
		}
		return runOnce(func(ctx context.Context, a *app.App) (any, error) {
			return a.Reindex.Reindex(ctx, t)
		})
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair <collection|all>",
	Short: "Sanitize stored boundary geometry",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runOnce(func(ctx context.Context, a *app.App) (any, error) {
			if args[0] == "all" {
				return a.Repair.RepairAll(ctx)
			}
			return a.Repair.Repair(ctx, args[0])
		})
	},
}

var geoIndexCmd = &cobra.Command{
	Use:   "geo-index [collection]",
	Short: "Ensure 2dsphere indexes on boundary collections",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runOnce(func(ctx context.Context, a *app.App) (any, error) {
			if len(args) == 1 {
				return a.Spatial.EnsureSpatialIndex(ctx, args[0])
			}
			return a.Spatial.EnsureAll(ctx), nil
		})
	},
}

// runOnce wires the application, runs fn until it returns or a signal
// arrives, and prints its result as JSON.
func runOnce(fn func(ctx context.Context, a *app.App) (any, error)) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if err := a.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Error("close error", "error", err)
		}
	}()

	result, err := fn(ctx, a)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func entityTypeNames() []string {
	names := make([]string, len(domain.AllEntityTypes))
	for i, t := range domain.AllEntityTypes {
		names[i] = string(t)
	}
	return names
}
