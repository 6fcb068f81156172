package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newAgendaCmd(global *globalOptions) *cobra.Command {
	var (
		userID string
		from   string
		to     string
		output string
	)

	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Print the merged agenda of a user",
		Long: `Print the events, webinars and broadcasts of a user between two days,
ordered by start time. Webinars and broadcasts that collide with an adjacent
personal event are left out.

Days accept today, tomorrow, YYYY-MM-DD or an RFC 3339 timestamp. The window
defaults to today plus the configured horizon and ends at midnight of --to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}

			a, err := global.load(cmd)
			if err != nil {
				return err
			}

			now := time.Now()
			start, err := parseDay(from, a.loc, now)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			end := start.AddDate(0, 0, a.cfg.HorizonDays)
			if to != "" {
				if end, err = parseDay(to, a.loc, now); err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
			}
			if end.Before(start) {
				return fmt.Errorf("--to (%s) is before --from (%s)", end.Format(time.DateOnly), start.Format(time.DateOnly))
			}

			ctx := cmd.Context()
			svc, users, err := a.service(ctx, nil)
			if err != nil {
				return err
			}
			viewer, err := users.Lookup(userID)
			if err != nil {
				return err
			}

			items, err := svc.Agenda(ctx, viewer, start, end)
			if err != nil {
				return err
			}

			if output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), items)
			}
			return writeAgendaTable(cmd.OutOrStdout(), items, a.loc)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "ID of the user whose agenda is printed (required)")
	cmd.Flags().StringVar(&from, "from", "today", "First day of the agenda")
	cmd.Flags().StringVar(&to, "to", "", "Day the agenda ends at (default: --from plus horizon_days)")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format: table or json")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
