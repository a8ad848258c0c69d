package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tuml/internal/blog"
	"github.com/JakeFAU/tuml/internal/discovery"
)

// ErrQuotaExhausted is returned by --no-wait when the quota has no headroom.
var ErrQuotaExhausted = errors.New("api quota is nearly exhausted")

type trackFunc func(e *discovery.Engine) func(ctx context.Context, name string) (discovery.Result, error)

func newEnableCmd() *cobra.Command {
	return newTrackCmd(
		"enable <blog>...",
		"Track blogs: refresh them on update and harvest their notes",
		func(e *discovery.Engine) func(context.Context, string) (discovery.Result, error) { return e.Enable },
	)
}

func newDisableCmd() *cobra.Command {
	return newTrackCmd(
		"disable <blog>...",
		"Stop tracking blogs without forgetting them",
		func(e *discovery.Engine) func(context.Context, string) (discovery.Result, error) { return e.Disable },
	)
}

func newTrackCmd(use, short string, pick trackFunc) *cobra.Command {
	var noWait bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if noWait {
				usage, err := appInstance.Governor().Usage(ctx)
				if err != nil {
					return fmt.Errorf("read quota usage: %w", err)
				}
				if usage.Exceeding {
					return fmt.Errorf("%w: remaining minute=%d hour=%d day=%d",
						ErrQuotaExhausted, usage.Remaining.Minute, usage.Remaining.Hour, usage.Remaining.Day)
				}
			}
			op := pick(appInstance.Engine())
			for _, name := range args {
				res, err := op(ctx, name)
				if err != nil {
					appInstance.Logger().Error("Stopping: fatal error", zap.String("blog", name), zap.Error(err))
					return err
				}
				if err := printResult(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "fail immediately instead of waiting when the quota is nearly exhausted")
	return cmd
}

func printResult(w io.Writer, res discovery.Result) error {
	var line string
	switch {
	case res.Failed && res.StatusCode > 0:
		line = fmt.Sprintf("%s: failed (status %d)", res.Name, res.StatusCode)
	case res.Failed:
		line = fmt.Sprintf("%s: failed (transport error)", res.Name)
	case res.State == "":
		line = fmt.Sprintf("%s: not tracked", res.Name)
	case res.Outcome == blog.Rejected:
		line = fmt.Sprintf("%s: %s (terminal, ignored)", res.Name, res.Previous)
	default:
		line = fmt.Sprintf("%s: %s (%s)", res.Name, res.State, res.Outcome)
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
