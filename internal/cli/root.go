// Package cli implements the seashell command line.
package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fortiblox/seashell/pkg/config"
	"github.com/fortiblox/seashell/pkg/seashell"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "seashell",
		Short:         "Run single instructions against a layered account state",
		Version:       fmt.Sprintf("%s (%s)", Version, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a TOML configuration file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level: debug, info, warn, error (overrides the file)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewAccountCommand(opts))
	cmd.AddCommand(NewAirdropCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// loadConfig reads the configuration file and applies the log level flag.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	return cfg, nil
}

func newLogger(level string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger(), nil
}

// openSession builds a session from the configuration. Logs go to stderr.
func (o *RootOptions) openSession(cmd *cobra.Command) (*seashell.Seashell, zerolog.Logger, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger, err := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	s, err := seashell.Open(cfg, logger)
	if err != nil {
		return nil, logger, fmt.Errorf("open session: %w", err)
	}
	return s, logger, nil
}

// closeSession closes s and folds its error into err.
func closeSession(s *seashell.Seashell, logger zerolog.Logger, err *error) {
	res, cerr := s.Close()
	if res.Written {
		logger.Debug().Str("path", res.Path).Int("accounts", res.Accounts).Msg("scenario saved")
	}
	if cerr != nil && *err == nil {
		*err = fmt.Errorf("close session: %w", cerr)
	}
}
