// Package cmd defines and implements the CLI commands for the audit executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/prelaunch-audit/internal/app"
	"github.com/JakeFAU/prelaunch-audit/internal/audit"
	"github.com/JakeFAU/prelaunch-audit/internal/config"
	"github.com/JakeFAU/prelaunch-audit/internal/logging"
	"github.com/JakeFAU/prelaunch-audit/internal/worker"
	pkgconfig "github.com/JakeFAU/prelaunch-audit/pkg/config"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// standalone marks commands that run without application services.
const standalone = "standalone"

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	Config() config.Config
	Logger() *zap.Logger
	Execute(ctx context.Context, request audit.Request) (worker.Result, error)
	Run(ctx context.Context) error
	Close(ctx context.Context) error
}

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	dev        bool
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, opts rootOptions) (App, error) {
	v, used, err := pkgconfig.InitViper(opts.configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.dev {
		cfg.Logging.Development = true
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	if used != "" {
		logger.Info("using config file", zap.String("path", used))
	} else {
		logger.Info("no config file found; using defaults and environment variables")
	}
	return app.Build(ctx, cfg, logger, nil)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var opts rootOptions
	cmd := &cobra.Command{
		Use:   "prelaunch-audit",
		Short: "Audits a clinic website before it goes live.",
		Long: `prelaunch-audit crawls a clinic website, checks every page for broken
links, a wrong phone number, wording problems and a mismatched GA4 tag,
and writes the findings to an Excel checklist.`,
		SilenceUsage: true,

		// Builds the application once flags are parsed and stores it in the context
		// for the subcommand.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[standalone] != "" {
				return nil
			}
			appInstance, err := newApp(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (default is ./config.yaml, /etc/prelaunch-audit/ or $HOME/.prelaunch-audit)")
	cmd.PersistentFlags().BoolVar(&opts.dev, "dev", false, "enable development logging")

	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSheetCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
