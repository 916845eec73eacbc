package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSummaryCommand(opts Options) *cobra.Command {
	var year, month int

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show a month's totals and the change from the month before",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := opts.Now()
			if year == 0 {
				year = now.Year()
			}
			if month == 0 {
				month = int(now.Month())
			}
			if year < 2000 || year > 2100 {
				return fmt.Errorf("--year must be between 2000 and 2100, got %d", year)
			}
			if month < 1 || month > 12 {
				return fmt.Errorf("--month must be between 1 and 12, got %d", month)
			}

			s, err := open(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.close()

			r, err := s.summaries.Report(cmd.Context(), year, month)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d-%02d: %s across %d expense(s)\n",
				r.Current.Year, r.Current.Month, r.Current.TotalAmount, r.Current.TotalCount)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
			for _, g := range r.Current.CategoryBreakdown {
				fmt.Fprintf(tw, "  %s\t%s\t%d\t\n", g.Category, g.Total, g.Count)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(out, "Previous %d-%02d: %s\n", r.Previous.Year, r.Previous.Month, r.Previous.TotalAmount)
			fmt.Fprintf(out, "Change: %.2f%% (%s)\n", r.Comparison.PercentageChange, r.Comparison.Difference)
			return nil
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "year, defaults to the current one")
	cmd.Flags().IntVar(&month, "month", 0, "month 1-12, defaults to the current one")

	return cmd
}
