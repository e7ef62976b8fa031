package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/config"
	pkgconfig "github.com/AcelinoMargotti/scinexa-project-nexus/pkg/config"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/logger"
)

// Exit codes for nexusctl.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the operation ran and failed
	ExitCommandError = 2 // bad flags or configuration
)

// ValidFormats are the accepted values of --format.
var ValidFormats = []string{"text", "json"}

// RootOptions holds the global flags.
type RootOptions struct {
	Env       string
	ConfigDir string
	Format    string
}

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func wrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// NewRootCommand builds the nexusctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "nexusctl",
		Short: "Operator tooling for the research project tracker",
		Long:  "nexusctl issues access tokens, replays outbox events and applies database migrations.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return wrapExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Env, "env", pkgconfig.GetConfigEnv(), "configuration environment")
	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config-dir", pkgconfig.GetEnv("CONFIG_DIR", "config"), "configuration directory")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newTokenCommand(opts))
	cmd.AddCommand(newOutboxCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))

	return cmd
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(o.Env, o.ConfigDir)
	if err != nil {
		return nil, wrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return cfg, nil
}

func (o *RootOptions) newLogger(cfg *config.Config) (*zap.Logger, error) {
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, wrapExitError(ExitCommandError, "failed to init logger", err)
	}
	return log, nil
}

// print writes data as one JSON document or as its text form.
func (o *RootOptions) print(w io.Writer, data any, text string) error {
	if o.Format == "json" {
		return json.NewEncoder(w).Encode(data)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
