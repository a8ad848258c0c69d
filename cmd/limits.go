package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newLimitsCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "limits",
		Short: "Show remaining API calls for the current minute, hour and day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validOutput(output); err != nil {
				return err
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			usage, err := appInstance.Governor().Usage(cmd.Context())
			if err != nil {
				return fmt.Errorf("read quota usage: %w", err)
			}
			return render(cmd.OutOrStdout(), output, usage, func(w io.Writer) error {
				rows := []struct {
					window                string
					ceiling, used, remain int
				}{
					{"minute", usage.Ceilings.PerMinute, usage.Used.Minute, usage.Remaining.Minute},
					{"hour", usage.Ceilings.PerHour, usage.Used.Hour, usage.Remaining.Hour},
					{"day", usage.Ceilings.PerDay, usage.Used.Day, usage.Remaining.Day},
				}
				if _, err := fmt.Fprintln(w, "WINDOW\tCEILING\tUSED\tREMAINING"); err != nil {
					return err
				}
				for _, r := range rows {
					if _, err := fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", r.window, r.ceiling, r.used, r.remain); err != nil {
						return err
					}
				}
				if usage.Exceeding {
					_, err := fmt.Fprintln(w, "quota nearly exhausted: calls will wait for the next minute")
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format: table, json or yaml")
	return cmd
}
