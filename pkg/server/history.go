package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

const maxHistoryRange = 7 * 24 * time.Hour

func (s *Server) handleHistoryActions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start, end, err := parseTimeRange(r, s.sys.Now())
	if err != nil {
		writeError(ctx, w, "invalid time range", err)
		return
	}

	actions, err := s.storage.GetActionHistory(ctx, start, end)
	if err != nil {
		writeError(ctx, w, "failed to get actions", err)
		return
	}
	if actions == nil {
		actions = []types.Action{}
	}

	// a range that ended before today will not change anymore
	if end.Before(truncateDay(s.sys.Now())) {
		w.Header().Set("Cache-Control", "private, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "private, max-age=60")
	}
	writeJSON(w, actions)
}

func parseTimeRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" && endStr == "" {
		// Default to last 24 hours if not specified
		return now.Add(-24 * time.Hour), now, nil
	}
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, &types.ValidationError{Field: "time range", Message: "start and end must be given together"}
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, &types.ValidationError{Field: "start", Message: err.Error()}
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, &types.ValidationError{Field: "end", Message: err.Error()}
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, &types.ValidationError{Field: "time range", Message: "start time must be before end time"}
	}
	if end.Sub(start) > maxHistoryRange {
		return time.Time{}, time.Time{}, &types.ValidationError{Field: "time range", Message: fmt.Sprintf("range cannot exceed %s", maxHistoryRange)}
	}
	return start, end, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
