// Package cmd provides the CLI commands for docvec.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docvec/internal/config"
	dverrors "github.com/Aman-CERP/docvec/internal/errors"
	"github.com/Aman-CERP/docvec/internal/logging"
	"github.com/Aman-CERP/docvec/internal/profiling"
	"github.com/Aman-CERP/docvec/pkg/version"
)

// Global flags
var (
	debugMode      bool
	configFile     string
	loggingCleanup func()
	previousLogger *slog.Logger
)

// Profiling flags
var (
	profileOpts    profiling.Options
	profileSession *profiling.Session
)

// NewRootCmd creates the root command for the docvec CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docvec",
		Short: "Turn a directory of documents into a vector index",
		Long: `docvec loads every document under a directory, splits it into
overlapping chunks, embeds each chunk, and saves the vectors together with
the chunk text into a self-contained index directory.

Run 'docvec build docs' to create ./my_vector_db from ./docs.`,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.SetVersionTemplate("docvec version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.docvec/logs/")
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./.docvec.yaml)")

	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfiling
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints any error in CLI form.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		_, _ = fmt.Fprint(root.ErrOrStderr(), dverrors.FormatForCLI(err))
	}
	if perr := stopProfiling(); perr != nil && err == nil {
		err = perr
		_, _ = fmt.Fprint(root.ErrOrStderr(), dverrors.FormatForCLI(err))
	}
	stopLoggingQuietly()
	return err
}

// loadConfig loads configuration for the working directory, honoring
// --config.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	var opts []config.LoadOption
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	cfg, err := config.Load(cwd, opts...)
	if err != nil {
		return nil, dverrors.ConfigError("failed to load configuration", err).
			WithSuggestion("run 'docvec config show' to inspect the effective configuration")
	}
	return cfg, nil
}

// setupLogging points slog at the rotating log file. Logs never go to
// stdout, which belongs to the progress renderer.
func setupLogging(cfg *config.Config) {
	if loggingCleanup != nil {
		return
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if cfg.Logging.File != "" {
		logCfg.FilePath = cfg.Logging.File
	}
	if debugMode {
		logCfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Logging is not critical for the CLI.
		return
	}
	loggingCleanup = cleanup
	previousLogger = slog.Default()
	slog.SetDefault(logger)
	slog.Debug("logging_started",
		slog.String("log_file", logCfg.FilePath),
		slog.String("version", version.Version))
}

func startProfiling(_ *cobra.Command, _ []string) error {
	if !profileOpts.Enabled() || profileSession != nil {
		return nil
	}
	s, err := profiling.Start(profileOpts)
	if err != nil {
		return err
	}
	profileSession = s
	return nil
}

// stopProfiling is also called from Execute, since cobra skips the post-run
// hook when a command fails.
func stopProfiling() error {
	s := profileSession
	profileSession = nil
	return s.Stop()
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	err := stopProfiling()
	stopLoggingQuietly()
	return err
}

func stopLoggingQuietly() {
	if loggingCleanup != nil {
		slog.SetDefault(previousLogger)
		loggingCleanup()
		loggingCleanup = nil
	}
}
