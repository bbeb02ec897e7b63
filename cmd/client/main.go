package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/syncmirror/internal/client/config"
	"github.com/openmined/syncmirror/internal/client/sync"
	"github.com/openmined/syncmirror/internal/utils"
	"github.com/openmined/syncmirror/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	red    = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
)

// logLevel is raised to debug by --verbose before any command runs.
var logLevel = new(slog.LevelVar)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "syncmirror",
		Short:   "Mirror a local folder to a remote store",
		Version: version.Detailed(),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				logLevel.Set(slog.LevelDebug)
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("config", "c", config.DefaultConfigPath, "config file")
	flags.StringP("dir", "d", config.DefaultLocalDir, "local folder to sync")
	flags.StringP("backend", "b", config.DefaultBackend, "remote backend (dir, s3, minio, http)")
	flags.StringP("remote-root", "r", config.DefaultRemoteRoot, "remote root folder name")
	flags.BoolP("verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newRunCmd(sync.DirectionPush, "Upload local changes to the remote store"),
		newRunCmd(sync.DirectionPull, "Download the remote tree into the local folder"),
		newStatusCmd(),
		newWatchCmd(),
		newVersionCmd(),
	)
	return cmd
}

func main() {
	logLevel.Set(slog.LevelInfo)

	logFile := os.Getenv(config.EnvPrefix + "_LOG_FILE")
	if logFile == "" {
		logFile = config.DefaultLogFilePath
	}
	if err := logs.Open(logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer logs.Close()

	stderrHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	fileHandler := slog.NewTextHandler(logs, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stderrHandler, fileHandler)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig merges the config file, SYNCMIRROR_* env and the global flags.
// The config file is optional unless --config was given explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	config.LoadDotEnv()

	v := config.NewViper()

	configPath := config.DefaultConfigPath
	explicit := false
	if f := cmd.Flag("config"); f != nil && f.Changed {
		configPath = f.Value.String()
		explicit = true
	} else if envPath := os.Getenv(config.EnvPrefix + "_CONFIG_PATH"); envPath != "" {
		configPath = envPath
		explicit = true
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if explicit || (!enoent && !notFound) {
			return nil, fmt.Errorf("config read '%s': %w", configPath, err)
		}
		slog.Debug("no config file, using flags and env", "path", configPath)
	}

	bindFlag(v, cmd, "local_dir", "dir")
	bindFlag(v, cmd, "backend", "backend")
	bindFlag(v, cmd, "remote_root", "remote-root")

	cfg, err := config.Decode(v, configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.LogFile != "" && cfg.LogFile != logs.Path() {
		if err := logs.Open(cfg.LogFile); err != nil {
			return nil, fmt.Errorf("log file: %w", err)
		}
	}
	return cfg, nil
}

// bindFlag lets an explicitly set flag win over file and env values.
func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if f := cmd.Flag(flag); f != nil && f.Changed {
		v.Set(key, f.Value.String())
	}
}

func relToHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if rel, err := filepath.Rel(home, path); err == nil && filepath.IsLocal(rel) {
		return filepath.Join("~", rel)
	}
	return path
}
