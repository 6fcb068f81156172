package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/teemow/calmerge/internal/calendar"
)

const (
	outputTable = "table"
	outputJSON  = "json"

	tableTimeLayout = "2006-01-02 15:04"
)

func validateOutput(format string) error {
	switch format {
	case outputTable, outputJSON:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (supported: table, json)", format)
	}
}

// parseDay reads a day as "today", "tomorrow", YYYY-MM-DD or RFC 3339 and
// returns its midnight in loc. An empty value means today.
func parseDay(value string, loc *time.Location, now time.Time) (time.Time, error) {
	midnight := func(t time.Time) time.Time {
		t = t.In(loc)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "today":
		return midnight(now), nil
	case "tomorrow":
		return midnight(now).AddDate(0, 0, 1), nil
	}

	if t, err := time.ParseInLocation(time.DateOnly, value, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return midnight(t), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q: use today, tomorrow, YYYY-MM-DD or RFC 3339", value)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statusLabel(status *bool) string {
	switch {
	case status == nil:
		return "-"
	case *status:
		return "accepted"
	default:
		return "pending"
	}
}

func writeAgendaTable(w io.Writer, items []calendar.Item, loc *time.Location) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "No events.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tTYPE\tTITLE\tOWNER\tSTATUS")
	for _, it := range items {
		kind := strings.ToLower(string(it.Type))
		if it.UserEventType != nil && *it.UserEventType != "" {
			kind = string(*it.UserEventType)
		}
		owner := "no"
		if it.IsOwner {
			owner = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			it.StartAt.In(loc).Format(tableTimeLayout),
			it.EndAt.In(loc).Format(tableTimeLayout),
			kind,
			it.Title,
			owner,
			statusLabel(it.Status),
		)
	}
	return tw.Flush()
}

func writeSlotsTable(w io.Writer, slots []calendar.TimeSlot, loc *time.Location, freeOnly bool) error {
	if len(slots) == 0 {
		_, err := fmt.Fprintln(w, "No bookable slots left on this day.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tAVAILABLE")
	for _, s := range slots {
		if freeOnly && !s.IsAvailable {
			continue
		}
		state := "busy"
		if s.IsAvailable {
			state = "free"
		}
		fmt.Fprintf(tw, "%s\t%s\n", s.StartAt.In(loc).Format(tableTimeLayout), state)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	free := len(slots) - calendar.CountUnavailable(slots)
	_, err := fmt.Fprintf(w, "\n%d of %d slots free\n", free, len(slots))
	return err
}
