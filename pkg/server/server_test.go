package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Juliapixel/projeto-goodwe/pkg/aggregate"
	"github.com/Juliapixel/projeto-goodwe/pkg/controller"
	"github.com/Juliapixel/projeto-goodwe/pkg/ess"
	"github.com/Juliapixel/projeto-goodwe/pkg/model"
	"github.com/Juliapixel/projeto-goodwe/pkg/storage/storagemock"
	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

var testNow = time.Date(2024, 6, 10, 15, 0, 0, 0, ess.InstallationZone)

// fakeSystem reports 1 kWh of load at 03:00 every day.
type fakeSystem struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSystem) Info() types.ESSProviderInfo {
	return types.ESSProviderInfo{ID: "fake", Name: "Fake"}
}

func (f *fakeSystem) Now() time.Time {
	return testNow
}

func (f *fakeSystem) PointSnapshot(ctx context.Context) (types.PointSnapshot, error) {
	f.calls.Add(1)
	return types.PointSnapshot{BatteryPercent: 64, GenerationW: 2100, DailyEnergyKWh: 12.5, MonthlyEnergyKWh: 140}, f.err
}

func (f *fakeSystem) DayCurves(ctx context.Context, date time.Time) (types.DayCurveSet, error) {
	f.calls.Add(1)
	if f.err != nil {
		return types.DayCurveSet{}, f.err
	}
	set := types.DayCurveSet{Date: date}
	for i := 0; i < 12; i++ {
		set.Load = append(set.Load, types.TimeSeriesPoint{
			Timestamp: date.Add(3*time.Hour + time.Duration(i)*5*time.Minute),
			Value:     1000,
		})
	}
	return set, nil
}

func (f *fakeSystem) CurrentLoad(ctx context.Context) (float64, error) {
	f.calls.Add(1)
	return 420, f.err
}

func (f *fakeSystem) InverterColumn(ctx context.Context, date time.Time, column types.InverterColumn) ([]types.TimeSeriesPoint, error) {
	f.calls.Add(1)
	return []types.TimeSeriesPoint{{Timestamp: date.Add(time.Hour), Value: 3.5}}, f.err
}

type mockPlug struct {
	mock.Mock
}

func (m *mockPlug) QueryState(ctx context.Context) (types.PlugQueryResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.PlugQueryResult), args.Error(1)
}

func (m *mockPlug) SetState(ctx context.Context, on bool) (types.PlugSetResult, error) {
	args := m.Called(ctx, on)
	return args.Get(0).(types.PlugSetResult), args.Error(1)
}

func (m *mockPlug) List(ctx context.Context) ([]types.PlugInfo, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]types.PlugInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPlug) DeviceID() string {
	return "plug-1"
}

type testServer struct {
	*Server
	sys  *fakeSystem
	plug *mockPlug
	db   *storagemock.MockDatabase
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	sys := &fakeSystem{}
	p := &mockPlug{}
	db := &storagemock.MockDatabase{}
	alwaysShutdown := model.Func(func(hour int, loadW float64) bool { return true })
	srv := newServer(Deps{
		System:   sys,
		Engine:   aggregate.NewEngine(sys, alwaysShutdown, aggregate.WithClock(sys.Now)),
		Plug:     p,
		Override: controller.NewOverride(),
		Storage:  db,
	})
	srv.bypassAuth = true
	t.Cleanup(func() {
		p.AssertExpectations(t)
		db.AssertExpectations(t)
	})
	return &testServer{Server: srv, sys: sys, plug: p, db: db}
}

func (ts *testServer) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	ts.setupHandler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "goodwe", w.Header().Get("Server"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestReport(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/api/report")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	report := decode[types.EnergyReport](t, w)
	assert.InDelta(t, 1, report.Daily.ConsumptionKWh, 1e-9)
	assert.InDelta(t, 0.7, report.Daily.SavingsKWh, 1e-9)
	assert.InDelta(t, 7, report.Weekly.ConsumptionKWh, 1e-9)
	assert.InDelta(t, 30, report.Monthly.ConsumptionKWh, 1e-9)
	assert.InDelta(t, 21, report.Monthly.SavingsKWh, 1e-9)
	// one pass over the longest window
	assert.EqualValues(t, 30, ts.sys.calls.Load())
}

func TestRollingReport(t *testing.T) {
	t.Run("Cutoffs", func(t *testing.T) {
		ts := newTestServer(t)
		w := ts.do(http.MethodGet, "/api/report/rolling?cutoffs=2,0")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		windows := decode[[]types.WindowTotals](t, w)
		require.Len(t, windows, 2)
		assert.Equal(t, 2, windows[0].CutoffDays)
		assert.InDelta(t, 3, windows[0].ConsumptionKWh, 1e-9)
		assert.InDelta(t, 1, windows[1].ConsumptionKWh, 1e-9)
	})

	t.Run("Not A Number", func(t *testing.T) {
		ts := newTestServer(t)
		w := ts.do(http.MethodGet, "/api/report/rolling?cutoffs=1,x")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, ts.sys.calls.Load())
	})

	t.Run("Too Large", func(t *testing.T) {
		ts := newTestServer(t)
		w := ts.do(http.MethodGet, "/api/report/rolling?cutoffs=20000")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode[map[string]string](t, w)["error"], "cutoffs")
		assert.Zero(t, ts.sys.calls.Load())
	})

	t.Run("Negative", func(t *testing.T) {
		ts := newTestServer(t)
		w := ts.do(http.MethodGet, "/api/report/rolling?cutoffs=-1")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode[map[string]string](t, w)["error"], "cutoffs")
		assert.Zero(t, ts.sys.calls.Load())
	})
}

func TestConsumptionAndSavings(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/consumption?days=3")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[periodResponse](t, w)
	assert.Equal(t, 3, res.Days)
	assert.InDelta(t, 3, res.KWh, 1e-9)

	w = ts.do(http.MethodGet, "/api/savings?days=0")
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[periodResponse](t, w)
	assert.Equal(t, 1, res.Days)
	assert.InDelta(t, 0.7, res.KWh, 1e-9)

	w = ts.do(http.MethodGet, "/api/savings?days=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	calls := ts.sys.calls.Load()
	for _, target := range []string{"/api/consumption?days=100000", "/api/savings?days=367"} {
		w = ts.do(http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Contains(t, decode[map[string]string](t, w)["error"], "days", target)
	}
	assert.Equal(t, calls, ts.sys.calls.Load())
}

func TestSavingsWeek(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/api/savings/week")
	require.Equal(t, http.StatusOK, w.Code)

	week := decode[[]types.DayTotals](t, w)
	require.Len(t, week, 7)
	assert.Equal(t, "Tuesday", week[0].Weekday)
	assert.Equal(t, "Monday", week[6].Weekday)
	for _, d := range week {
		assert.InDelta(t, 0.7, d.SavingsKWh, 1e-9)
	}
}

func TestUpstreamFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.sys.err = &types.UpstreamError{Endpoint: "GetPlantPowerChart", Status: 502}

	for _, target := range []string{"/api/report", "/api/battery", "/api/load", "/api/curves"} {
		w := ts.do(http.MethodGet, target)
		assert.Equal(t, http.StatusInternalServerError, w.Code, target)
		assert.NotEmpty(t, decode[map[string]string](t, w)["error"], target)
	}
}

func TestTelemetry(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/battery")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"batteryPercent":64}`, w.Body.String())

	w = ts.do(http.MethodGet, "/api/load")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"loadW":420}`, w.Body.String())

	w = ts.do(http.MethodGet, "/api/generation")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"generationW":2100,"dailyEnergyKWh":12.5,"monthlyEnergyKWh":140}`, w.Body.String())
}

func TestCurves(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/curves?date=2024-06-01")
	require.Equal(t, http.StatusOK, w.Code)
	set := decode[types.DayCurveSet](t, w)
	assert.True(t, set.Date.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, ess.InstallationZone)))
	assert.Len(t, set.Load, 12)
	assert.Equal(t, "private, max-age=86400", w.Header().Get("Cache-Control"))

	w = ts.do(http.MethodGet, "/api/curves")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "private, max-age=60", w.Header().Get("Cache-Control"))

	w = ts.do(http.MethodGet, "/api/curves?date=01/06/2024")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInverterColumn(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/inverter/column?column=Pac&date=2024-06-01")
	require.Equal(t, http.StatusOK, w.Code)
	points := decode[[]types.TimeSeriesPoint](t, w)
	require.Len(t, points, 1)
	assert.Equal(t, 3.5, points[0].Value)

	calls := ts.sys.calls.Load()
	w = ts.do(http.MethodGet, "/api/inverter/column?column=Vpv1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, calls, ts.sys.calls.Load())
}

func TestSetPlug(t *testing.T) {
	t.Run("Manual On", func(t *testing.T) {
		ts := newTestServer(t)
		ts.plug.On("SetState", mock.Anything, true).Return(types.PlugSetResult{
			Payload:    types.PlugOutcome{Present: true, Success: true},
			Raw:        []byte(`{"present":true,"success":true}`),
			StatusCode: http.StatusOK,
		}, nil).Once()

		w := ts.do(http.MethodPost, "/api/tomada/set?state=ON")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"present":true,"success":true}`, w.Body.String())

		st := ts.override.State()
		assert.False(t, st.EconomyModeEnabled)
		require.NotNil(t, st.ManualState)
		assert.True(t, *st.ManualState)
	})

	t.Run("Status Passthrough", func(t *testing.T) {
		ts := newTestServer(t)
		ts.plug.On("SetState", mock.Anything, false).Return(types.PlugSetResult{
			Payload:    types.PlugOutcome{Present: false},
			Raw:        []byte(`{"present":false,"success":false}`),
			StatusCode: http.StatusNotFound,
		}, nil).Once()

		w := ts.do(http.MethodPost, "/api/tomada/set?state=off")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"present":false,"success":false}`, w.Body.String())
		assert.Equal(t, types.DefaultOverrideState(), ts.override.State(), "a rejected switch keeps economy mode")
	})

	t.Run("Invalid State", func(t *testing.T) {
		ts := newTestServer(t)
		w := ts.do(http.MethodPost, "/api/tomada/set?state=maybe")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		ts.plug.AssertNotCalled(t, "SetState", mock.Anything, mock.Anything)
		assert.Equal(t, types.DefaultOverrideState(), ts.override.State())
	})

	t.Run("Broker Down", func(t *testing.T) {
		ts := newTestServer(t)
		ts.plug.On("SetState", mock.Anything, true).Return(types.PlugSetResult{}, errors.New("connection refused")).Once()
		w := ts.do(http.MethodPost, "/api/tomada/set?state=on")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, types.DefaultOverrideState(), ts.override.State(), "a failed switch keeps economy mode")
	})

	t.Run("Wrong Method", func(t *testing.T) {
		ts := newTestServer(t)
		w := ts.do(http.MethodGet, "/api/tomada/set?state=on")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestGetPlug(t *testing.T) {
	ts := newTestServer(t)
	ts.plug.On("QueryState", mock.Anything).Return(types.PlugQueryResult{
		Raw:        []byte(`{"state":null,"lastseen":null}`),
		StatusCode: http.StatusNotFound,
	}, nil).Once()

	w := ts.do(http.MethodGet, "/api/tomada/get")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"state":null,"lastseen":null}`, w.Body.String())
}

func TestListPlugs(t *testing.T) {
	t.Run("Connected", func(t *testing.T) {
		ts := newTestServer(t)
		ts.plug.On("List", mock.Anything).Return([]types.PlugInfo{{
			ID:       "plug-1",
			State:    "on",
			LastSeen: time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC),
		}}, nil).Once()

		w := ts.do(http.MethodGet, "/api/tomada/list")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.JSONEq(t, `{"deviceId":"plug-1","plugs":[{"id":"plug-1","state":"on","last_seen":"2024-06-10T12:00:00Z"}]}`, w.Body.String())
	})

	t.Run("None Connected", func(t *testing.T) {
		ts := newTestServer(t)
		ts.plug.On("List", mock.Anything).Return(nil, nil).Once()

		w := ts.do(http.MethodGet, "/api/tomada/list")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"deviceId":"plug-1","plugs":[]}`, w.Body.String())
	})

	t.Run("Broker Down", func(t *testing.T) {
		ts := newTestServer(t)
		ts.plug.On("List", mock.Anything).Return(nil, &types.UpstreamError{Endpoint: "list", Status: 502}).Once()

		w := ts.do(http.MethodGet, "/api/tomada/list")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"failed to list plugs"}`, w.Body.String())
	})
}

func TestEconomy(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/tomada/get_economia")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"state":"on","manualState":null}`, w.Body.String())

	ts.override.SetManual(false)
	w = ts.do(http.MethodGet, "/api/tomada/get_economia")
	assert.JSONEq(t, `{"state":"off","manualState":"off"}`, w.Body.String())

	ts.plug.On("QueryState", mock.Anything).Return(types.PlugQueryResult{
		Raw:        []byte(`{"state":"off","lastseen":"2024-06-10T15:00:00Z"}`),
		StatusCode: http.StatusOK,
	}, nil).Once()
	w = ts.do(http.MethodPost, "/api/tomada/set_economia?state=on")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"state":"off","lastseen":"2024-06-10T15:00:00Z"}`, w.Body.String())
	assert.Equal(t, types.DefaultOverrideState(), ts.override.State())

	w = ts.do(http.MethodPost, "/api/tomada/set_economia?state=")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAutomationStatus(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/api/automation/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"override":{"economyModeEnabled":true,"manualState":null}}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
}
