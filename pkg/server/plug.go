package server

import (
	"log/slog"
	"net/http"

	"github.com/Juliapixel/projeto-goodwe/pkg/log"
	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

func (s *Server) handleGetPlug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := s.plug.QueryState(ctx)
	if err != nil {
		writeError(ctx, w, "failed to query plug", err)
		return
	}
	writeRaw(w, res.Raw, res.StatusCode)
}

type plugListResponse struct {
	DeviceID string           `json:"deviceId"`
	Plugs    []types.PlugInfo `json:"plugs"`
}

// handleListPlugs lists the plugs connected to the broker alongside the one
// the automation controls.
func (s *Server) handleListPlugs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	plugs, err := s.plug.List(ctx)
	if err != nil {
		writeError(ctx, w, "failed to list plugs", err)
		return
	}
	if plugs == nil {
		plugs = []types.PlugInfo{}
	}
	writeJSON(w, plugListResponse{DeviceID: s.plug.DeviceID(), Plugs: plugs})
}

// handleSetPlug takes manual control of the plug and forwards the broker
// outcome. The override, which disables economy mode, is only applied once the
// broker confirms the switch so a failed request leaves the automation in
// charge.
func (s *Server) handleSetPlug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	on, err := types.ParseOnOff(r.URL.Query().Get("state"))
	if err != nil {
		writeError(ctx, w, "invalid state", err)
		return
	}

	res, err := s.plug.SetState(ctx, on)
	if err != nil {
		writeError(ctx, w, "failed to set plug", err)
		return
	}
	if res.OK() {
		s.override.SetManual(on)
		log.Ctx(ctx).InfoContext(ctx, "manual plug override", slog.Bool("on", on))
	} else {
		log.Ctx(ctx).WarnContext(ctx, "plug rejected manual state", slog.Int("status", res.StatusCode), slog.Bool("present", res.Payload.Present))
	}
	writeRaw(w, res.Raw, res.StatusCode)
}

func (s *Server) handleGetEconomy(w http.ResponseWriter, r *http.Request) {
	st := s.override.State()
	var manual *string
	if st.ManualState != nil {
		v := types.OnOff(*st.ManualState)
		manual = &v
	}
	writeJSON(w, struct {
		State       string  `json:"state"`
		ManualState *string `json:"manualState"`
	}{types.OnOff(st.EconomyModeEnabled), manual})
}

// handleSetEconomy toggles economy mode and forwards the current plug state.
func (s *Server) handleSetEconomy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	enabled, err := types.ParseOnOff(r.URL.Query().Get("state"))
	if err != nil {
		writeError(ctx, w, "invalid state", err)
		return
	}

	s.override.SetEconomy(enabled)
	log.Ctx(ctx).InfoContext(ctx, "economy mode changed", slog.Bool("enabled", enabled))

	res, err := s.plug.QueryState(ctx)
	if err != nil {
		writeError(ctx, w, "failed to query plug", err)
		return
	}
	writeRaw(w, res.Raw, res.StatusCode)
}

func (s *Server) handleAutomationStatus(w http.ResponseWriter, r *http.Request) {
	if s.loop == nil {
		writeJSON(w, struct {
			Override types.OverrideState `json:"override"`
		}{s.override.State()})
		return
	}
	writeJSON(w, s.loop.Status())
}
