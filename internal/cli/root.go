package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/app"
	"github.com/vovakirdan/wirechat-client/internal/config"
	applog "github.com/vovakirdan/wirechat-client/internal/log"
)

var (
	version = "dev"
	commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "wirechat-client",
	Short: "Terminal client for WireChat",
	Long: `wirechat-client keeps a local view of your conversations in sync with a
WireChat server: send messages, follow live updates, manage friends and calls.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file path (default is <user config dir>/wirechat/config.yaml)")
	flags.String("api-url", "", "REST API base URL")
	flags.String("ws-url", "", "push channel URL")
	flags.String("log-level", "", "log level: debug, info, warn, error, off")
	flags.String("metrics-addr", "", "serve prometheus metrics on this address")
}

// overrides collects the global flags that were set explicitly.
func overrides(cmd *cobra.Command) (config.Config, string) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	var out config.Config
	out.APIURL, _ = flags.GetString("api-url")
	out.WSURL, _ = flags.GetString("ws-url")
	out.LogLevel, _ = flags.GetString("log-level")
	out.MetricsAddr, _ = flags.GetString("metrics-addr")
	return out, path
}

// openApp loads configuration and builds the application. Callers close it.
func openApp(cmd *cobra.Command) (*app.App, *zerolog.Logger, error) {
	flagCfg, path := overrides(cmd)

	bootLevel := flagCfg.LogLevel
	if bootLevel == "" {
		bootLevel = "warn"
	}
	cfg, resolved, err := config.Load(applog.New(bootLevel), path)
	if err != nil {
		return nil, nil, err
	}
	cfg.UpdateFrom(flagCfg)

	logger := applog.New(cfg.LogLevel)
	logger.Debug().Str("config", resolved).Str("api_url", cfg.APIURL).Msg("configuration loaded")

	a, err := app.New(&cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}
