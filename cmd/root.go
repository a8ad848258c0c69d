// Package cmd defines the tuml command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tuml/internal/app"
	"github.com/JakeFAU/tuml/internal/config"
	"github.com/JakeFAU/tuml/internal/discovery"
	"github.com/JakeFAU/tuml/internal/quota"
	"github.com/JakeFAU/tuml/internal/store"
)

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// App is the set of services the commands use.
type App interface {
	Logger() *zap.Logger
	Store() store.Store
	Governor() *quota.Governor
	Engine() *discovery.Engine
	Serve(ctx context.Context) error
	Close() error
}

// appFactory builds the App from the --config path.
type appFactory func(ctx context.Context, cfgPath string) (App, error)

func buildApp(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg)
}

// newRootCmd builds the command tree. The App created for the invoked command is
// stored in *built so the caller can close it whatever the outcome.
func newRootCmd(factory appFactory, built *App) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "tuml",
		Short: "Track Tumblr blogs and discover new ones from their notes.",
		Long: `tuml keeps a registry of Tumblr blogs, refreshes the ones you enable
and records every blog that interacts with their posts as a potential
candidate, without ever exceeding the API quota.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := factory(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			*built = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml); TUML_* env vars override it")

	cmd.AddCommand(
		newInitCmd(),
		newEnableCmd(),
		newDisableCmd(),
		newUpdateCmd(),
		newLimitsCmd(),
		newListCmd(),
		newServeCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// run executes the command line in args and closes the App it built.
func run(ctx context.Context, factory appFactory, args []string, stdout, stderr io.Writer) error {
	var built App
	root := newRootCmd(factory, &built)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if built != nil {
		if cerr := built.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close application: %w", cerr)
		}
	}
	return err
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command's
// context, which ends any quota wait and lets run close the App.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, buildApp, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
