package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/calmerge/internal/calendar"
	"github.com/teemow/calmerge/internal/config"
	"github.com/teemow/calmerge/internal/instrumentation"
	"github.com/teemow/calmerge/internal/logging"
	"github.com/teemow/calmerge/internal/planner"
	"github.com/teemow/calmerge/internal/source"
)

// EnvConfig names the config file when --config is not given.
const EnvConfig = "CALMERGE_CONFIG"

// version will be set by main
var version = "dev"

// SetVersion sets the version reported by the CLI
func SetVersion(v string) {
	version = v
}

// globalOptions holds the persistent flags shared by all subcommands.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// newRootCmd builds the command tree. Tests build a fresh one per case.
func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "calmerge",
		Short: "Merges calendars into agendas and finds free meeting slots",
		Long: `calmerge merges personal events, webinar registrations and broadcast
subscriptions into one agenda per user, and computes the free booking slots
two users share on a given day.

Events come from YAML snapshots, ICS feeds and Google Calendar, as
configured in the config file.

It can run as:
  - A CLI answering one query (agenda, slots)
  - A long-running service refreshing agendas on a schedule (serve)`,
		Version:       version,
		SilenceUsage:  true,
	}
	cmd.SetVersionTemplate(`{{printf "calmerge version %s\n" .Version}}`)

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to the config file (default: $CALMERGE_CONFIG or <user config dir>/calmerge/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides the config file)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format: text or json (overrides the config file)")

	cmd.AddCommand(newAgendaCmd(opts))
	cmd.AddCommand(newSlotsCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newAuthCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute is the main entry point for the CLI application
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// defaultConfigPath resolves the config file location.
func defaultConfigPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "calmerge", "config.yaml")
}

// app is the loaded configuration plus what every command derives from it.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	loc    *time.Location
}

// load reads and validates the config file and applies flag overrides.
func (o *globalOptions) load(cmd *cobra.Command) (*app, error) {
	path := o.configPath
	if path == "" {
		path = defaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat),
		loc:    loc,
	}, nil
}

// service opens every configured source and builds the planner on top.
func (a *app) service(ctx context.Context, metrics *instrumentation.Metrics) (*planner.Service, *source.Directory, error) {
	store, users, err := source.Open(ctx, a.cfg, source.Options{Metrics: metrics, Logger: a.logger})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sources: %w", err)
	}

	engine, err := calendar.NewEngine(
		calendar.WithTick(a.cfg.Tick()),
		calendar.WithLogger(a.logger),
	)
	if err != nil {
		return nil, nil, err
	}

	svc := planner.NewService(store, engine,
		planner.WithBookingHours(a.cfg.BookingHours),
		planner.WithPadding(a.cfg.Padding()),
		planner.WithLocation(a.loc),
		planner.WithMetrics(metrics),
		planner.WithLogger(a.logger),
	)
	return svc, users, nil
}
