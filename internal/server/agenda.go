package server

import (
	"net/http"
	"time"

	"github.com/teemow/calmerge/internal/calendar"
	"github.com/teemow/calmerge/internal/planner"
)

// AgendaSnapshots exposes the agendas kept warm by the refresher.
type AgendaSnapshots interface {
	Snapshot(userID string) (planner.Snapshot, bool)
}

// agendaResponse is the body of GET /agenda.
type agendaResponse struct {
	User    string          `json:"user"`
	From    time.Time       `json:"from"`
	To      time.Time       `json:"to"`
	BuiltAt time.Time       `json:"built_at"`
	Items   []calendar.Item `json:"items"`
}

// AgendaHandler serves the latest agenda snapshot of ?user=<id>.
func AgendaHandler(snapshots AgendaSnapshots) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		userID := r.URL.Query().Get("user")
		if userID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user parameter"})
			return
		}

		snap, ok := snapshots.Snapshot(userID)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no agenda for user"})
			return
		}

		items := snap.Items
		if items == nil {
			items = []calendar.Item{}
		}
		writeJSON(w, http.StatusOK, agendaResponse{
			User:    snap.User.ID,
			From:    snap.From,
			To:      snap.To,
			BuiltAt: snap.BuiltAt,
			Items:   items,
		})
	}
}
