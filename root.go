package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudvault/internal/api"
	"github.com/tonimelisma/cloudvault/internal/auth"
	"github.com/tonimelisma/cloudvault/internal/config"
	"github.com/tonimelisma/cloudvault/internal/metrics"
	"github.com/tonimelisma/cloudvault/internal/quota"
	"github.com/tonimelisma/cloudvault/internal/sessionstore"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagServer     string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// CLIFlags are the global output flags.
type CLIFlags struct {
	JSON    bool
	Verbose bool
	Quiet   bool
}

// CLIContext bundles everything a command needs. It is built once per
// invocation in PersistentPreRunE and stored in the command's context.
type CLIContext struct {
	Cfg     *config.Resolved
	Flags   CLIFlags
	Logger  *slog.Logger
	Store   sessionstore.Store
	Client  *api.Client
	Auth    *auth.Manager
	Quota   *quota.Tracker
	Metrics *metrics.Metrics

	Out    io.Writer
	ErrOut io.Writer
}

type cliContextKey struct{}

// cliContextFrom returns the CLIContext stored by the root pre-run.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}

// mustCLIContext is cliContextFrom for commands that always run after the
// root pre-run.
func mustCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	cc := cliContextFrom(cmd.Context())
	if cc == nil {
		return nil, errors.New("internal error: command context not initialized")
	}

	return cc, nil
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cloudvault",
		Short:   "Cloud file storage client",
		Long:    "Upload, list, download, and share files stored in a cloudvault server.",
		Version: version,
		// Silence Cobra's default error/usage printing; main prints errors.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := newCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if cc := cliContextFrom(cmd.Context()); cc != nil {
				return cc.Close()
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagServer, "server", "", "API base URL (e.g. https://files.example.com/api)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newQuotaCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newShareCmd())
	cmd.AddCommand(newPublicCmd())
	cmd.AddCommand(newThemeCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// newCLIContext resolves config and wires the session, transport, and
// telemetry for one invocation. No network calls are made here.
func newCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}

	// Only pass --server to the resolver if the user explicitly set it.
	if cmd.Flags().Changed("server") {
		cli.Server = &flagServer
	}

	flags := CLIFlags{JSON: flagJSON, Verbose: flagVerbose, Quiet: flagQuiet}

	cfg, err := config.Resolve(config.ReadEnvOverrides(nil), cli, bootstrapLogger(flags))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := buildLogger(cfg, flags, os.Stderr)

	store, err := sessionstore.Open(cfg.SessionBackend, cfg.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	m := metrics.New()
	mgr := auth.NewManager(store, logger)

	client := api.NewClient(cfg.BaseURL, &http.Client{}, mgr, logger,
		api.WithShareBaseURL(cfg.ShareBaseURL),
		api.WithUserAgent(cfg.UserAgent),
		api.WithTimeouts(cfg.MetadataTimeout, cfg.UploadTimeout, cfg.RefreshTimeout),
		api.WithBandwidthLimiter(api.NewBandwidthLimiter(cfg.BandwidthLimit, logger)),
		api.WithObserver(m),
	)
	mgr.Attach(client)

	return &CLIContext{
		Cfg:     cfg,
		Flags:   flags,
		Logger:  logger,
		Store:   store,
		Client:  client,
		Auth:    mgr,
		Quota:   quota.NewTracker(mgr),
		Metrics: m,
		Out:     cmd.OutOrStdout(),
		ErrOut:  cmd.ErrOrStderr(),
	}, nil
}

// Close flushes metrics and releases the session store.
func (cc *CLIContext) Close() error {
	var errs []error

	if cc.Cfg.MetricsTextfile != "" {
		if err := cc.Metrics.WriteTextfile(cc.Cfg.MetricsTextfile); err != nil {
			cc.Logger.Warn("could not write metrics", slog.String("error", err.Error()))
		}
	}

	if err := cc.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing session store: %w", err))
	}

	return errors.Join(errs...)
}

// requireSession restores the persisted session and fails unless it is
// still valid.
func (cc *CLIContext) requireSession(ctx context.Context) error {
	if err := cc.Auth.Initialize(ctx); err != nil {
		return err
	}

	if cc.Auth.State() != auth.Authenticated {
		return errNotLoggedIn
	}

	return nil
}

var errNotLoggedIn = errors.New("not logged in: run 'cloudvault login' first")

// logLevel maps the config level and CLI flags to an slog level. CLI flags
// always win over the config file.
func logLevel(configured string, flags CLIFlags) slog.Level {
	level := slog.LevelWarn

	switch configured {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	return level
}

// bootstrapLogger is used while config is being resolved.
func bootstrapLogger(flags CLIFlags) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel("", flags)}))
}

// buildLogger creates the invocation logger from the resolved config.
func buildLogger(cfg *config.Resolved, flags CLIFlags, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel(cfg.LogLevel, flags)}

	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", describeError(err))
	os.Exit(1)
}

// describeError renders err for the terminal. Transport errors get the
// friendly wording, except that a rejected login or registration shows the
// server's own message. Everything else prints as is.
func describeError(err error) string {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		return err.Error()
	}

	var authErr *auth.AuthError
	if errors.As(err, &authErr) && apiErr.Message != "" {
		return apiErr.Message
	}

	return api.Describe(err)
}
