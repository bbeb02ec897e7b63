package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/openmined/syncmirror/internal/client/config"
	"github.com/openmined/syncmirror/internal/client/sync"
	"github.com/spf13/cobra"
)

func newRunCmd(dir sync.Direction, short string) *cobra.Command {
	var noProgress bool

	cmd := &cobra.Command{
		Use:   string(dir),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			var reporter sync.ProgressReporter = sync.ProgressFunc(func(ev sync.ProgressEvent) {
				slog.Debug("progress", "message", ev.Message, "percent", ev.Progress)
			})
			var bar *progressBar
			if !noProgress && isatty.IsTerminal(os.Stderr.Fd()) {
				bar = newProgressBar(cmd.ErrOrStderr(), true)
				reporter = bar
			}

			engine, b, err := newEngine(cmd, cfg, reporter)
			if err != nil {
				return err
			}
			defer b.Close()

			result, runErr := engine.Run(cmd.Context(), dir)
			if bar != nil {
				bar.Stop()
			}
			printResult(cmd.OutOrStdout(), result)
			return runErr
		},
	}
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "do not draw a progress bar on a terminal")
	return cmd
}

// newEngine opens the configured backend and builds an engine over it. The
// caller closes the backend.
func newEngine(cmd *cobra.Command, cfg *config.Config, reporter sync.ProgressReporter) (*sync.SyncEngine, *backend, error) {
	b, err := openBackend(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}

	engine, err := sync.NewSyncEngine(&sync.EngineConfig{
		LocalDir:     cfg.LocalDir,
		RemoteRoot:   cfg.RemoteRoot,
		MetadataPath: cfg.MetadataFile,
		MachineID:    cfg.MachineID,
		IgnoreFile:   cfg.IgnoreFile,
		Store:        b.store,
		Credentials:  b.credentials,
		Progress:     reporter,
	})
	if err != nil {
		b.Close()
		return nil, nil, err
	}

	slog.Info("syncmirror",
		"local", relToHome(engine.LocalDir()),
		"backend", cfg.Backend,
		"remoteRoot", cfg.RemoteRoot,
		"machine", engine.MachineID(),
	)
	return engine, b, nil
}

func printResult(w io.Writer, result *sync.RunResult) {
	if result == nil {
		return
	}

	switch result.Status {
	case sync.RunStatusCompleted:
		fmt.Fprintln(w, green("✔ "+result.Message))
	case sync.RunStatusCompletedWithSkips:
		fmt.Fprintln(w, yellow("! "+result.Message))
	default:
		fmt.Fprintln(w, red("✘ "+result.Message))
		if result.ReauthRequired {
			fmt.Fprintln(w, yellow("  credentials need to be renewed before the next run"))
		}
		return
	}

	s := result.Stats
	fmt.Fprintf(w, "  %s checked, %s unchanged, %s uploaded, %s updated, %s downloaded, %s refreshed in %s\n",
		humanize.Comma(int64(s.Processed)),
		humanize.Comma(int64(s.Unchanged)),
		humanize.Comma(int64(s.Uploaded)),
		humanize.Comma(int64(s.Updated)),
		humanize.Comma(int64(s.Downloaded)),
		humanize.Comma(int64(s.Refreshed)),
		result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond),
	)
	for _, name := range result.ConflictCopies {
		fmt.Fprintf(w, "  %s %s\n", yellow("conflict copy:"), name)
	}
	for _, skipped := range result.Skipped {
		fmt.Fprintf(w, "  %s %s (%s)\n", yellow("skipped:"), skipped.Path, strings.TrimSpace(skipped.Reason))
	}
}
