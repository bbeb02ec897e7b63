package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/syncmirror/internal/server"
	"github.com/openmined/syncmirror/internal/server/auth"
	"github.com/openmined/syncmirror/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "SYNCMIRROR"

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "syncmirror-server",
		Short:   "Serve a local folder as a syncmirror http remote",
		Version: version.Detailed(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			srv, err := server.New(cfg)
			if err != nil {
				return err
			}

			slog.Info("syncmirror-server", "version", version.Version, "revision", version.Revision, "build", version.BuildDate)
			defer slog.Info("Bye!")
			if err := srv.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringP("config", "f", "", "config file (json or yaml)")
	flags.StringP("data", "d", "", "folder holding the store")
	cmd.Flags().StringP("bind", "b", server.DefaultAddr, "address to bind the server")
	cmd.Flags().StringP("cert", "c", "", "path to the certificate file")
	cmd.Flags().StringP("key", "k", "", "path to the key file")

	cmd.AddCommand(newTokenCmd())
	return cmd
}

func main() {
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	slog.SetDefault(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*server.Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.addr", server.DefaultAddr)
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.token_issuer", "syncmirror")
	v.SetDefault("auth.access_token_expiry", auth.DefaultAccessTokenExpiry)
	v.SetDefault("auth.refresh_token_expiry", auth.DefaultRefreshTokenExpiry)
	for _, key := range []string{
		"data_dir", "http.cert_file", "http.key_file",
		"auth.access_token_secret", "auth.refresh_token_secret",
	} {
		v.BindEnv(key)
	}

	if f := cmd.Flag("config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config read '%s': %w", f.Value.String(), err)
		}
	}

	for key, flag := range map[string]string{
		"data_dir":       "data",
		"http.addr":      "bind",
		"http.cert_file": "cert",
		"http.key_file":  "key",
	} {
		if f := cmd.Flag(flag); f != nil && f.Changed {
			v.Set(key, f.Value.String())
		}
	}

	var cfg server.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
