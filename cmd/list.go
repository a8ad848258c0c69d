package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/tuml/internal/blog"
)

func newListCmd() *cobra.Command {
	var (
		output string
		state  string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked blogs, largest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validOutput(output); err != nil {
				return err
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			var recs []blog.Record
			if state != "" {
				st, ok := blog.ParseState(state)
				if !ok {
					return fmt.Errorf("unknown state %q", state)
				}
				recs, err = appInstance.Store().ListByState(cmd.Context(), st)
			} else {
				recs, err = appInstance.Store().List(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("list blogs: %w", err)
			}
			if recs == nil {
				recs = []blog.Record{}
			}
			sort.SliceStable(recs, func(i, j int) bool { return recs[i].PostCount > recs[j].PostCount })

			return render(cmd.OutOrStdout(), output, recs, func(w io.Writer) error {
				if _, err := fmt.Fprintln(w, "NAME\tSTATE\tPOSTS\tAGE_HOURS\tURL"); err != nil {
					return err
				}
				for _, r := range recs {
					url := ""
					if r.Meta != nil {
						url = r.Meta.URL
					}
					if _, err := fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", r.Name, r.State, r.PostCount, r.AgeHours, url); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "only list blogs in this state (enabled, disabled, potential, not_found)")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format: table, json or yaml")
	return cmd
}
