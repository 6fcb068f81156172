package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

func newSlotsCmd(global *globalOptions) *cobra.Command {
	var (
		userID   string
		withID   string
		day      string
		duration time.Duration
		freeOnly bool
		output   string
	)

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print the booking slots two users share on a day",
		Long: `Print the booking grid of a day for a meeting between --user and --with.

The grid covers the configured booking hours in steps of tick_minutes, and
starts at the current hour when the day is today. A slot is busy when it
falls inside an event of either user, extended backwards by --duration.
Declined invitations do not block.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}

			a, err := global.load(cmd)
			if err != nil {
				return err
			}

			date, err := parseDay(day, a.loc, time.Now())
			if err != nil {
				return err
			}

			padding := time.Duration(-1)
			if cmd.Flags().Changed("duration") {
				padding = duration
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
			target, err := users.Lookup(withID)
			if err != nil {
				return err
			}

			slots, err := svc.FreeSlots(ctx, viewer, target, date, padding)
			if err != nil {
				return err
			}

			if output == outputJSON {
				if freeOnly {
					free := slots[:0]
					for _, s := range slots {
						if s.IsAvailable {
							free = append(free, s)
						}
					}
					slots = free
				}
				return writeJSON(cmd.OutOrStdout(), slots)
			}
			return writeSlotsTable(cmd.OutOrStdout(), slots, a.loc, freeOnly)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "ID of the user booking the meeting (required)")
	cmd.Flags().StringVar(&withID, "with", "", "ID of the user to meet (required)")
	cmd.Flags().StringVar(&day, "day", "today", "Day to search: today, tomorrow, YYYY-MM-DD or RFC 3339")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Time kept free before every busy range (default: padding_minutes from the config)")
	cmd.Flags().BoolVar(&freeOnly, "free-only", false, "Only list free slots")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format: table or json")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("with")

	return cmd
}
