package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/docker/local-rag-engine/pkg/logging"
	"github.com/docker/local-rag-engine/pkg/paths"
)

// rootFlags carries the persistent flags: a config path and a debug switch
// that gate logging setup in PersistentPreRunE, plus the log file handle
// closed on exit.
type rootFlags struct {
	configPath string
	debugMode  bool
	enableOtel bool
	logFile    io.Closer
}

func (f *rootFlags) setupLogging() error {
	level := slog.LevelInfo
	if f.debugMode {
		level = slog.LevelDebug
	}

	rf, err := logging.NewRotatingFile(paths.LogFile())
	if err != nil {
		return err
	}
	f.logFile = rf

	slog.SetDefault(slog.New(slog.NewTextHandler(rf, &slog.HandlerOptions{Level: level})))
	return nil
}

// NewRootCmd builds the engine's cobra command tree.
func NewRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "engine",
		Short: "engine - local hybrid retrieval and agent-orchestration engine",
		Long:  "engine indexes documents into a dual vector/lexical store and answers queries over them, optionally through a tool-using agent loop.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := flags.setupLogging(); err != nil {
				// Logging setup failing shouldn't stop the command from
				// running; fall back to stderr so we still get logs.
				slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
					Level: slog.LevelInfo,
				})))
			}
			setupOtel(cmd.Context(), flags.enableOtel)
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if flags.logFile != nil {
				return flags.logFile.Close()
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", paths.ConfigFile(), "path to the engine's YAML config file")
	cmd.PersistentFlags().BoolVar(&flags.debugMode, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.enableOtel, "otel", "o", false, "enable OpenTelemetry tracing")

	cmd.AddCommand(
		newIndexCmd(&flags),
		newPreviewCmd(),
		newQueryCmd(&flags),
		newAgentCmd(&flags),
		newDBCmd(&flags),
		newVersionCmd(),
	)
	return cmd
}
