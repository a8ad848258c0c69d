package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Refresh enabled blogs, then record note authors as potential blogs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := appInstance.Engine().Update(cmd.Context())
			if err != nil {
				appInstance.Logger().Error("Update aborted", zap.Error(err))
				return fmt.Errorf("update: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(),
				"Visited %d, refreshed %d, vanished %d, discovered %d, failed %d.\n",
				report.Visited, report.Refreshed, report.Vanished, report.Discovered, report.Failed)
			return err
		},
	}
}
