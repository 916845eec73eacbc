package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"expenses/internal/core"
)

func newListCommand(opts Options) *cobra.Command {
	var (
		category string
		start    string
		end      string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List expenses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				f   core.Filter
				err error
			)
			if category != "" {
				if f.Category, err = core.ParseCategory(category); err != nil {
					return fmt.Errorf("--category: %w", err)
				}
			}
			if f.StartDate, err = parseDateFlag("start", start); err != nil {
				return err
			}
			if f.EndDate, err = parseDateFlag("end", end); err != nil {
				return err
			}

			s, err := open(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.close()

			expenses, err := s.expenses.List(cmd.Context(), f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(expenses)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDATE\tCATEGORY\tAMOUNT\tDESCRIPTION")
			for _, e := range expenses {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Date, e.Category, e.Amount, e.Description)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d expense(s)\n", len(expenses))
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only this category")
	cmd.Flags().StringVar(&start, "start", "", "earliest date, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "latest date, YYYY-MM-DD")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	return cmd
}
