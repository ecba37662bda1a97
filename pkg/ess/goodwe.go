package ess

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/Juliapixel/projeto-goodwe/pkg/log"
	"github.com/Juliapixel/projeto-goodwe/pkg/metrics"
	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

const (
	pointsPath       = "/api/v3/PowerStation/GetInverterAllPoint"
	plantChartPath   = "/api/v2/Charts/GetPlantPowerChart"
	columnByDatePath = "/api/PowerStationMonitor/GetInverterDataByColumn"

	semsDateFormat     = "01/02/2006"
	semsDateTimeFormat = "01/02/2006 15:04:05"

	curveKeyPV      = "PCurve_Power_PV"
	curveKeyBattery = "PCurve_Power_Battery"
	curveKeyMeter   = "PCurve_Power_Meter"
	curveKeyLoad    = "PCurve_Power_Load"
	curveKeySOC     = "PCurve_Power_SOC"
)

// errTokenExpired marks an upstream response that asks for a new login.
var errTokenExpired = errors.New("session token expired")

// GoodWe implements the System interface for an installation monitored
// through the GoodWe SEMS portal.
type GoodWe struct {
	session    *Session
	account    string
	password   string
	region     string
	stationID  string
	inverterSN string
	now        func() time.Time
}

// GoodWeConfig holds the account and installation identifiers.
type GoodWeConfig struct {
	Account    string
	Password   string
	Region     string
	StationID  string
	InverterSN string
}

// NewGoodWe returns a client that logs in lazily on its first call.
func NewGoodWe(session *Session, cfg GoodWeConfig) *GoodWe {
	return &GoodWe{
		session:    session,
		account:    cfg.Account,
		password:   cfg.Password,
		region:     cfg.Region,
		stationID:  cfg.StationID,
		inverterSN: cfg.InverterSN,
		now:        time.Now,
	}
}

func goodweInfo() types.ESSProviderInfo {
	return types.ESSProviderInfo{
		ID:   "goodwe",
		Name: "GoodWe SEMS",
	}
}

// Info implements System.
func (g *GoodWe) Info() types.ESSProviderInfo {
	return goodweInfo()
}

// Now implements System.
func (g *GoodWe) Now() time.Time {
	return g.now().In(InstallationZone)
}

func (g *GoodWe) ensureLogin(ctx context.Context) error {
	if g.session.Token() != "" {
		return nil
	}
	_, err, _ := g.session.refresh.Do("login", func() (interface{}, error) {
		if g.session.Token() != "" {
			return nil, nil
		}
		return g.session.Login(ctx, g.account, g.password, g.region)
	})
	return err
}

// doRequest posts body to endpoint and decodes the data member of the
// response into dest. A token rejected by the portal triggers exactly one
// refresh and retry.
func (g *GoodWe) doRequest(ctx context.Context, endpoint string, body, dest interface{}) error {
	if err := g.ensureLogin(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	// we try up to 2 times because we might have an expired token
	for i := 0; i < 2; i++ {
		start := time.Now()
		err = g.post(ctx, endpoint, payload, dest)
		metrics.ObserveUpstream(path.Base(endpoint), start, err)
		if i == 0 && errors.Is(err, errTokenExpired) {
			log.Ctx(ctx).DebugContext(ctx, "sems token expired", slog.String("endpoint", endpoint))
			if rerr := g.session.Refresh(ctx); rerr != nil {
				return rerr
			}
			continue
		}
		return err
	}
	return err
}

func (g *GoodWe) post(ctx context.Context, endpoint string, payload []byte, dest interface{}) error {
	name := path.Base(endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.session.BaseURL()+endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Token", g.session.Token())
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.session.client.Do(req)
	if err != nil {
		return &types.UpstreamError{Endpoint: name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &types.UpstreamError{Endpoint: name, Status: resp.StatusCode, Err: errTokenExpired}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &types.UpstreamError{Endpoint: name, Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &types.UpstreamError{Endpoint: name, Status: resp.StatusCode, Err: err}
	}

	var sr semsResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode sems response", slog.Any("error", err), slog.String("body", string(raw)))
		return &types.UpstreamError{Endpoint: name, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	switch sr.code() {
	case "100001", "100002":
		return &types.UpstreamError{Endpoint: name, Status: resp.StatusCode, Message: sr.Msg, Err: errTokenExpired}
	}
	if !sr.hasData() {
		log.Ctx(ctx).ErrorContext(ctx, "sems response has no data", slog.String("code", sr.code()), slog.String("msg", sr.Msg))
		msg := "response has no data"
		if sr.Msg != "" {
			msg += ": " + sr.Msg
		}
		return &types.UpstreamError{Endpoint: name, Status: resp.StatusCode, Message: msg}
	}

	if dest != nil {
		if err := json.Unmarshal(sr.Data, dest); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to decode sems data", slog.Any("error", err))
			return &types.UpstreamError{Endpoint: name, Status: resp.StatusCode, Message: "malformed data", Err: err}
		}
	}
	return nil
}

// semsNumeric decodes a value the portal sends either as a JSON number or as
// a numeric string, optionally suffixed with "%".
type semsNumeric float64

func (n *semsNumeric) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*n = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(str), "%"))
		if s == "" {
			*n = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric value %q: %w", s, err)
	}
	*n = semsNumeric(v)
	return nil
}

type inverterPoint struct {
	SOC    semsNumeric `json:"soc"`
	OutPac semsNumeric `json:"out_pac"`
	Eday   semsNumeric `json:"eday"`
	Emonth semsNumeric `json:"emonth"`
}

type allPointsResult struct {
	InverterPoints []inverterPoint `json:"inverterPoints"`
}

// PointSnapshot implements System.
func (g *GoodWe) PointSnapshot(ctx context.Context) (types.PointSnapshot, error) {
	var res allPointsResult
	if err := g.doRequest(ctx, pointsPath, map[string]string{"powerStationId": g.stationID}, &res); err != nil {
		return types.PointSnapshot{}, fmt.Errorf("failed to get inverter points: %w", err)
	}
	if len(res.InverterPoints) == 0 {
		return types.PointSnapshot{}, &types.UpstreamError{Endpoint: path.Base(pointsPath), Message: "no inverter points"}
	}
	p := res.InverterPoints[0]
	return types.PointSnapshot{
		BatteryPercent:   int(math.Round(float64(p.SOC))),
		GenerationW:      float64(p.OutPac),
		DailyEnergyKWh:   float64(p.Eday),
		MonthlyEnergyKWh: float64(p.Emonth),
	}, nil
}

type chartXY struct {
	X string   `json:"x"`
	Y *float64 `json:"y"`
}

type chartLine struct {
	Key string    `json:"key"`
	XY  []chartXY `json:"xy"`
}

type plantChartResult struct {
	Lines []chartLine `json:"lines"`
}

type plantChartRequest struct {
	Date       string `json:"date"`
	FullScript bool   `json:"full_script"`
	ID         string `json:"id"`
}

// DayCurves implements System.
func (g *GoodWe) DayCurves(ctx context.Context, date time.Time) (types.DayCurveSet, error) {
	day := calendarDay(date)

	var res plantChartResult
	req := plantChartRequest{
		Date: day.Format(semsDateFormat) + " 00:00:00",
		ID:   g.stationID,
	}
	if err := g.doRequest(ctx, plantChartPath, req, &res); err != nil {
		return types.DayCurveSet{}, fmt.Errorf("failed to get plant chart for %s: %w", day.Format(time.DateOnly), err)
	}

	set := types.DayCurveSet{Date: day}
	for _, line := range res.Lines {
		points, err := parseChartLine(day, line.XY)
		if err != nil {
			return types.DayCurveSet{}, &types.UpstreamError{Endpoint: path.Base(plantChartPath), Message: "malformed curve " + line.Key, Err: err}
		}
		switch line.Key {
		case curveKeyPV:
			set.PV = points
		case curveKeyBattery:
			set.Battery = points
		case curveKeyMeter:
			set.Grid = points
		case curveKeyLoad:
			set.Load = points
		case curveKeySOC:
			set.SOC = points
		}
	}
	return set, nil
}

// parseChartLine combines each "HH:MM" label with day. Samples without a
// value are skipped.
func parseChartLine(day time.Time, xy []chartXY) ([]types.TimeSeriesPoint, error) {
	points := make([]types.TimeSeriesPoint, 0, len(xy))
	for _, p := range xy {
		if p.Y == nil {
			continue
		}
		hh, mm, ok := strings.Cut(p.X, ":")
		if !ok {
			return nil, fmt.Errorf("invalid time label %q", p.X)
		}
		hour, err := strconv.Atoi(hh)
		if err != nil {
			return nil, fmt.Errorf("invalid time label %q: %w", p.X, err)
		}
		minute, err := strconv.Atoi(mm)
		if err != nil {
			return nil, fmt.Errorf("invalid time label %q: %w", p.X, err)
		}
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return nil, fmt.Errorf("invalid time label %q", p.X)
		}
		points = append(points, types.TimeSeriesPoint{
			Timestamp: time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, InstallationZone),
			Value:     *p.Y,
		})
	}
	return points, nil
}

// CurrentLoad implements System. An empty load curve reads as 0 W.
func (g *GoodWe) CurrentLoad(ctx context.Context) (float64, error) {
	set, err := g.DayCurves(ctx, g.Now())
	if err != nil {
		return 0, err
	}
	return lastValue(set.Load), nil
}

func lastValue(points []types.TimeSeriesPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	return points[len(points)-1].Value
}

type columnRequest struct {
	Date   string `json:"date"`
	Column string `json:"column"`
	ID     string `json:"id"`
}

type columnPoint struct {
	Date   string      `json:"date"`
	Column semsNumeric `json:"column"`
}

type columnResult struct {
	Column1 []columnPoint `json:"column1"`
}

// InverterColumn implements System.
func (g *GoodWe) InverterColumn(ctx context.Context, date time.Time, column types.InverterColumn) ([]types.TimeSeriesPoint, error) {
	if !column.Valid() {
		return nil, &types.ValidationError{Field: "column", Message: fmt.Sprintf("unknown column %q", column)}
	}
	day := calendarDay(date)

	var res columnResult
	req := columnRequest{
		Date:   day.Format(semsDateFormat) + " 00:00:00",
		Column: string(column),
		ID:     g.inverterSN,
	}
	if err := g.doRequest(ctx, columnByDatePath, req, &res); err != nil {
		return nil, fmt.Errorf("failed to get inverter column %s: %w", column, err)
	}

	points := make([]types.TimeSeriesPoint, 0, len(res.Column1))
	for _, p := range res.Column1 {
		ts, err := time.ParseInLocation(semsDateTimeFormat, p.Date, InstallationZone)
		if err != nil {
			return nil, &types.UpstreamError{Endpoint: path.Base(columnByDatePath), Message: "malformed date", Err: err}
		}
		points = append(points, types.TimeSeriesPoint{Timestamp: ts, Value: float64(p.Column)})
	}
	return points, nil
}
