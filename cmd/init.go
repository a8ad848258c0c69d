package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty registry and call ledger, discarding existing data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Store().Reset(cmd.Context()); err != nil {
				return fmt.Errorf("reset store: %w", err)
			}
			appInstance.Logger().Info("Store initialized")
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Initialized empty registry and call ledger.")
			return err
		},
	}
}
