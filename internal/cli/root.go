// Package cli implements the gemini command line using Cobra.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/skosovsky/gemini"
)

// app holds flag values and wiring shared by all commands.
type app struct {
	cfgFile string
	model   string
	verbose bool

	cfg    *Config
	logger *slog.Logger
	clock  Clock

	// newGenerator is replaced in tests.
	newGenerator func(cfg *Config, logger *slog.Logger) (gemini.Generator, error)
}

// Option customizes the command tree; used by tests.
type Option func(*app)

// WithGenerator replaces the API client.
func WithGenerator(gen gemini.Generator) Option {
	return func(a *app) {
		a.newGenerator = func(*Config, *slog.Logger) (gemini.Generator, error) { return gen, nil }
	}
}

// WithClock replaces the time source of the built-in tools.
func WithClock(clock Clock) Option {
	return func(a *app) {
		a.clock = clock
	}
}

// NewRootCommand returns the gemini command tree writing to out and errOut.
func NewRootCommand(out, errOut io.Writer, opts ...Option) *cobra.Command {
	a := &app{newGenerator: newClient}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:   "gemini",
		Short: "Chat with Gemini models and their tools",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.init(errOut)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is "+DefaultConfigPath()+")")
	root.PersistentFlags().StringVar(&a.model, "model", "", "model name (e.g. "+defaultModel+")")
	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "enable debug logging")

	root.AddCommand(newChatCommand(a), newToolsCommand(a))
	return root
}

func (a *app) init(errOut io.Writer) error {
	path := a.cfgFile
	if path == "" {
		path = DefaultConfigPath()
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	if a.model != "" {
		cfg.Model = a.model
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	a.cfg = cfg

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))
	return nil
}

func newClient(cfg *Config, logger *slog.Logger) (gemini.Generator, error) {
	opts := []gemini.ClientOption{gemini.WithLogger(logger)}
	if cfg.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIVersion != "" {
		opts = append(opts, gemini.WithAPIVersion(cfg.APIVersion))
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, gemini.WithRateLimit(rate.Limit(cfg.RateLimit), 1))
	}
	if cfg.APIKey != "" {
		return gemini.New(cfg.APIKey, opts...)
	}
	return gemini.NewFromEnv(opts...)
}
