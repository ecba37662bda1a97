package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

var defaultCutoffs = []int{0, 6, 29}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := s.engine.Report(ctx)
	if err != nil {
		writeError(ctx, w, "failed to compute report", err)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=60")
	writeJSON(w, report)
}

func parseCutoffs(v string) ([]int, error) {
	if v == "" {
		return defaultCutoffs, nil
	}
	parts := strings.Split(v, ",")
	cutoffs := make([]int, 0, len(parts))
	for _, p := range parts {
		c, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, &types.ValidationError{Field: "cutoffs", Message: fmt.Sprintf("%q is not an integer", p)}
		}
		cutoffs = append(cutoffs, c)
	}
	return cutoffs, nil
}

func (s *Server) handleRollingReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cutoffs, err := parseCutoffs(r.URL.Query().Get("cutoffs"))
	if err != nil {
		writeError(ctx, w, "invalid cutoffs", err)
		return
	}
	windows, err := s.engine.RollingReport(ctx, cutoffs)
	if err != nil {
		writeError(ctx, w, "failed to compute rolling report", err)
		return
	}
	writeJSON(w, windows)
}

// parseDays reads the days parameter. Missing means one day and anything
// below one is treated as one. The engine rejects more than aggregate.MaxDays.
func parseDays(r *http.Request) (int, error) {
	v := r.URL.Query().Get("days")
	if v == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &types.ValidationError{Field: "days", Message: fmt.Sprintf("%q is not an integer", v)}
	}
	return max(n, 1), nil
}

type periodResponse struct {
	Days int     `json:"days"`
	KWh  float64 `json:"kwh"`
}

func (s *Server) handleConsumption(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	days, err := parseDays(r)
	if err != nil {
		writeError(ctx, w, "invalid days", err)
		return
	}
	kwh, err := s.engine.ConsumptionOverDays(ctx, days)
	if err != nil {
		writeError(ctx, w, "failed to compute consumption", err)
		return
	}
	writeJSON(w, periodResponse{Days: days, KWh: kwh})
}

func (s *Server) handleSavings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	days, err := parseDays(r)
	if err != nil {
		writeError(ctx, w, "invalid days", err)
		return
	}
	kwh, err := s.engine.SavingsOverDays(ctx, days)
	if err != nil {
		writeError(ctx, w, "failed to compute savings", err)
		return
	}
	writeJSON(w, periodResponse{Days: days, KWh: kwh})
}

func (s *Server) handleSavingsWeek(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	totals, err := s.engine.DailyTotals(ctx, 7)
	if err != nil {
		writeError(ctx, w, "failed to compute weekly savings", err)
		return
	}
	writeJSON(w, totals)
}
