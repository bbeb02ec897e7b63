package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/syncmirror/internal/client/sync"
	"github.com/openmined/syncmirror/internal/utils"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newWatchCmd() *cobra.Command {
	var quiet time.Duration
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Push on start, after local changes and when the last sync goes stale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if err := utils.EnsureDir(cfg.LocalDir); err != nil {
				return fmt.Errorf("local dir: %w", err)
			}

			engine, b, err := newEngine(cmd, cfg, nil)
			if err != nil {
				return err
			}
			defer b.Close()

			return runWatch(cmd.Context(), cmd, engine, quiet, interval)
		},
	}
	cmd.Flags().DurationVar(&quiet, "quiet", sync.DefaultQuietPeriod, "wait this long after the last change before pushing")
	cmd.Flags().DurationVar(&interval, "check-interval", sync.DefaultStaleCheckInterval, "how often to check for a stale sync")
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, engine *sync.SyncEngine, quiet, interval time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watcher := sync.NewFileWatcherFor(engine, quiet)
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("file watcher: %w", err)
	}

	auto := sync.NewAutoSync(engine, watcher.Changes(), interval)
	auto.OnResult(func(result *sync.RunResult, err error) {
		if errors.Is(err, sync.ErrSyncAlreadyRunning) {
			return
		}
		printResult(cmd.OutOrStdout(), result)
	})

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer cancel()
		return auto.Run(egCtx)
	})
	eg.Go(func() error {
		<-egCtx.Done()
		cancel()
		watcher.Stop()
		return nil
	})

	err := eg.Wait()
	if err != nil {
		slog.Error("watch stopped", "error", err)
		return err
	}
	slog.Info("watch stopped")
	return nil
}
