package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/vk/cellgridgo/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// runFlags collects the run command's flag values.
type runFlags struct {
	configFile      string
	logFormat       string
	logLevel        string
	healthcheckPort int
	cellTimeout     time.Duration
	eventBuffer     int
}

// NewRootCmd builds the cellgridgo command tree writing to outW.
func NewRootCmd(outW io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cellgridgo",
		Short:         "A reactive notebook kernel for HCL cells",
		Long:          "cellgridgo loads a notebook of HCL cells, wires them into a dependency graph by the names they bind and read, and executes them reactively in dependency order.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(outW)
	rootCmd.SetErr(outW)

	flags := &runFlags{}
	runCmd := &cobra.Command{
		Use:   "run NOTEBOOK_PATH",
		Short: "Execute a notebook once and print the resulting values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotebook(cmd, args[0], flags, outW)
		},
	}
	runCmd.Flags().StringVarP(&flags.configFile, "config", "c", "", "Path to a YAML config file.")
	runCmd.Flags().StringVar(&flags.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	runCmd.Flags().StringVar(&flags.logLevel, "log-level", "info", "Logging level. Options: 'debug', 'info', 'warn', 'error'.")
	runCmd.Flags().IntVar(&flags.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	runCmd.Flags().DurationVar(&flags.cellTimeout, "cell-timeout", 0, "Per-cell execution time limit. 0 is unlimited.")
	runCmd.Flags().IntVar(&flags.eventBuffer, "event-buffer", 0, "Status stream buffer size. 0 picks a default.")
	rootCmd.AddCommand(runCmd)

	return rootCmd
}

// runNotebook assembles the app config from flags plus the optional config
// file and runs the notebook once.
func runNotebook(cmd *cobra.Command, notebookPath string, flags *runFlags, outW io.Writer) error {
	base := app.Config{
		NotebookPath:    notebookPath,
		LogFormat:       flags.logFormat,
		LogLevel:        flags.logLevel,
		HealthcheckPort: flags.healthcheckPort,
		CellTimeout:     flags.cellTimeout,
		EventBuffer:     flags.eventBuffer,
	}
	if flags.configFile != "" {
		if err := app.ApplyConfigFile(&base, flags.configFile); err != nil {
			return &ExitError{Code: 2, Message: err.Error()}
		}
	}
	cfg, err := app.NewConfig(base)
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}

	a, err := app.NewApp(outW, cfg)
	if err != nil {
		return &ExitError{Code: 1, Message: err.Error()}
	}
	if err := a.Run(cmd.Context()); err != nil {
		return &ExitError{Code: 1, Message: err.Error()}
	}
	return nil
}

// Execute runs the command tree and maps failures to an ExitError.
func Execute(outW io.Writer, args []string) error {
	rootCmd := NewRootCmd(outW)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr
		}
		return &ExitError{Code: 1, Message: fmt.Sprintf("cellgridgo: %v", err)}
	}
	return nil
}
