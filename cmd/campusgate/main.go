package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/BrandonDHaskell/campusgate/internal/config"
)

const programName = "campusgate"

var (
	globalFlags = struct {
		debug bool
	}{}
	configFile string
)

// loadRuntime reads the configuration and builds the process logger.
func loadRuntime() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if globalFlags.debug {
		cfg.Logging.Level = "debug"
	}
	logger := cfg.Logging.NewLogger(os.Stdout).With("component", programName)
	slog.SetDefault(logger)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		logger.Info(fmt.Sprintf(format, v...))
	})); err != nil {
		logger.Warn("set GOMAXPROCS", "error", err)
	}
	return cfg, logger, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Campus gate access decision engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCommand().RunE(cmd, args)
		},
	}
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&configFile, "config", "", "path to YAML config file")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(versionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
