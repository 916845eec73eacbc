// Package commands implements the expensectl admin CLI.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"expenses/internal/core"
	"expenses/internal/services"
	"expenses/internal/storage"
)

// Opener opens the configured store, applying migrations for SQL backends.
// The returned function closes it.
type Opener func(ctx context.Context) (storage.Store, func() error, error)

type Options struct {
	Open Opener
	// Location renders CSV timestamps. Nil means UTC.
	Location *time.Location
	// Now supplies the default year and month of summary.
	Now func() time.Time
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	rootCmd := &cobra.Command{
		Use:   "expensectl",
		Short: "Administer the expense tracker store",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newMigrateCommand(opts),
		newListCommand(opts),
		newSummaryCommand(opts),
		newExportCommand(opts),
	)
	return rootCmd
}

// session is an opened store plus the services over it.
type session struct {
	expenses  *services.ExpenseService
	summaries *services.SummaryService
	close     func() error
}

func open(ctx context.Context, opts Options) (*session, error) {
	store, closeFn, err := opts.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &session{
		expenses:  services.NewExpenseService(store, nil),
		summaries: services.NewSummaryService(store),
		close:     closeFn,
	}, nil
}

// parseDateFlag accepts an empty value as "no bound".
func parseDateFlag(name, value string) (core.Date, error) {
	if value == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(value)
	if err != nil {
		return core.Date{}, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}
