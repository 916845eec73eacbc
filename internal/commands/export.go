package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"expenses/internal/export"
)

func newExportCommand(opts Options) *cobra.Command {
	var start, end, outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write expenses in a date range as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, err := parseDateFlag("start", start)
			if err != nil {
				return err
			}
			to, err := parseDateFlag("end", end)
			if err != nil {
				return err
			}

			s, err := open(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.close()

			expenses, err := s.expenses.ExportRange(cmd.Context(), from, to)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create %s: %w", outPath, err)
				}
				defer f.Close()
				w = f
			}

			if _, err := export.NewFormatter(opts.Location).WriteTo(w, expenses); err != nil {
				return fmt.Errorf("write csv: %w", err)
			}
			if outPath != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d expense(s) to %s\n", len(expenses), outPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "first date, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&end, "end", "", "last date, YYYY-MM-DD (required)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "file to write instead of stdout")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}
