package http

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-grading/internal/notify"
)

// GET /events?after=<seq>&limit=100
// Pull feed over the event_log table for sites that sync by polling.
func EventsHandler(events *notify.EventLog, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		list, err := events.Since(r.Context(), after, parseIntDefault(r.URL.Query().Get("limit"), 100))
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		if list == nil {
			list = []notify.Record{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}
