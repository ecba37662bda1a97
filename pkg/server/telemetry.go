package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Juliapixel/projeto-goodwe/pkg/ess"
	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

// parseDate reads a YYYY-MM-DD date in the installation zone, defaulting to
// today.
func (s *Server) parseDate(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("date")
	if v == "" {
		return ess.Today(s.sys), nil
	}
	date, err := time.ParseInLocation(time.DateOnly, v, ess.InstallationZone)
	if err != nil {
		return time.Time{}, &types.ValidationError{Field: "date", Message: fmt.Sprintf("%q is not YYYY-MM-DD", v)}
	}
	return date, nil
}

func (s *Server) handleBattery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := s.sys.PointSnapshot(ctx)
	if err != nil {
		writeError(ctx, w, "failed to get battery", err)
		return
	}
	writeJSON(w, struct {
		BatteryPercent int `json:"batteryPercent"`
	}{snap.BatteryPercent})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	load, err := s.sys.CurrentLoad(ctx)
	if err != nil {
		writeError(ctx, w, "failed to get load", err)
		return
	}
	writeJSON(w, struct {
		LoadW float64 `json:"loadW"`
	}{load})
}

func (s *Server) handleGeneration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := s.sys.PointSnapshot(ctx)
	if err != nil {
		writeError(ctx, w, "failed to get generation", err)
		return
	}
	writeJSON(w, struct {
		GenerationW      float64 `json:"generationW"`
		DailyEnergyKWh   float64 `json:"dailyEnergyKWh"`
		MonthlyEnergyKWh float64 `json:"monthlyEnergyKWh"`
	}{snap.GenerationW, snap.DailyEnergyKWh, snap.MonthlyEnergyKWh})
}

func (s *Server) handleCurves(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date, err := s.parseDate(r)
	if err != nil {
		writeError(ctx, w, "invalid date", err)
		return
	}
	set, err := s.sys.DayCurves(ctx, date)
	if err != nil {
		writeError(ctx, w, "failed to get day curves", err)
		return
	}
	if date.Before(ess.Today(s.sys)) {
		w.Header().Set("Cache-Control", "private, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "private, max-age=60")
	}
	writeJSON(w, set)
}

func (s *Server) handleInverterColumn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	column := types.InverterColumn(r.URL.Query().Get("column"))
	if !column.Valid() {
		writeError(ctx, w, "invalid column", &types.ValidationError{Field: "column", Message: fmt.Sprintf("unknown column %q", column)})
		return
	}
	date, err := s.parseDate(r)
	if err != nil {
		writeError(ctx, w, "invalid date", err)
		return
	}
	points, err := s.sys.InverterColumn(ctx, date, column)
	if err != nil {
		writeError(ctx, w, "failed to get inverter column", err)
		return
	}
	if points == nil {
		points = []types.TimeSeriesPoint{}
	}
	writeJSON(w, points)
}
