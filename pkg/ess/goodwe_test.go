package ess

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
	"github.com/stretchr/testify/require"

	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

type fakePortal struct {
	logins atomic.Int32
	data   map[string]http.HandlerFunc
}

func (f *fakePortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == semsLoginPath {
		n := f.logins.Add(1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{"uid": "u", "token": n},
		})
		return
	}
	h, ok := f.data[r.URL.Path]
	if !ok {
		http.Error(w, "not found: "+r.URL.Path, http.StatusNotFound)
		return
	}
	h(w, r)
}

func newTestGoodWe(t *testing.T, data map[string]http.HandlerFunc) (*GoodWe, *fakePortal) {
	fp := &fakePortal{data: data}
	ts := httptest.NewServer(fp)
	t.Cleanup(ts.Close)

	g := NewGoodWe(newTestSession(ts), GoodWeConfig{
		Account:    "demo@goodwe.com",
		Password:   "pw",
		Region:     "eu",
		StationID:  "station-1",
		InverterSN: "SN123",
	})
	return g, fp
}

func writeData(w http.ResponseWriter, data string) {
	w.Write([]byte(`{"hasError":false,"code":0,"msg":"success","data":` + data + `}`))
}

func TestGoodWeDayCurvesIgnoresLocalZone(t *testing.T) {
	orig := time.Local
	t.Cleanup(func() { time.Local = orig })

	for _, local := range []*time.Location{
		time.FixedZone("UTC-3", -3*60*60),
		time.FixedZone("UTC+9", 9*60*60),
		time.UTC,
	} {
		t.Run(local.String(), func(t *testing.T) {
			time.Local = local
			g, _ := newTestGoodWe(t, map[string]http.HandlerFunc{
				plantChartPath: func(w http.ResponseWriter, r *http.Request) {
					var body map[string]interface{}
					require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
					assert.Equal(t, "06/01/2024 00:00:00", body["date"])
					writeData(w, `{"lines":[{"key":"PCurve_Power_Load","xy":[{"x":"14:35","y":512.5}]}]}`)
				},
			})

			set, err := g.DayCurves(context.Background(), time.Date(2024, 6, 1, 0, 0, 0, 0, time.Local))
			require.NoError(t, err)
			require.Len(t, set.Load, 1)
			got := set.Load[0].Timestamp
			assert.True(t, got.Equal(time.Date(2024, 6, 1, 12, 35, 0, 0, time.UTC)), "got %s", got)
			assert.Equal(t, "14:35", got.Format("15:04"))
			assert.Equal(t, 1, got.Day())
		})
	}
}

func TestGoodWeDayCurves(t *testing.T) {
	g, fp := newTestGoodWe(t, map[string]http.HandlerFunc{
		plantChartPath: func(w http.ResponseWriter, r *http.Request) {
			assert.NotEmpty(t, r.Header.Get("Token"))
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "06/01/2024 00:00:00", body["date"])
			assert.Equal(t, false, body["full_script"])
			assert.Equal(t, "station-1", body["id"])

			writeData(w, `{"lines":[
				{"key":"PCurve_Power_Load","xy":[{"x":"00:00","y":210},{"x":"14:35","y":512.5},{"x":"14:40","y":null}]},
				{"key":"PCurve_Power_PV","xy":[{"x":"14:35","y":3100}]},
				{"key":"PCurve_Power_SOC","xy":[{"x":"14:35","y":87}]},
				{"key":"SomethingElse","xy":[{"x":"14:35","y":1}]}
			]}`)
		},
	})

	set, err := g.DayCurves(context.Background(), time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.EqualValues(t, 1, fp.logins.Load())

	require.Len(t, set.Load, 2, "null samples are skipped")
	got := set.Load[1]
	assert.Equal(t, 512.5, got.Value)
	assert.True(t, got.Timestamp.Equal(time.Date(2024, 6, 1, 12, 35, 0, 0, time.UTC)), "got %s", got.Timestamp)
	_, offset := got.Timestamp.Zone()
	assert.Equal(t, 2*60*60, offset)

	assert.Len(t, set.PV, 1)
	assert.Len(t, set.SOC, 1)
	assert.Empty(t, set.Battery, "missing keys yield empty series")
	assert.Empty(t, set.Grid)
	assert.True(t, set.Date.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, InstallationZone)))
}

func TestGoodWeDayCurvesMalformed(t *testing.T) {
	g, _ := newTestGoodWe(t, map[string]http.HandlerFunc{
		plantChartPath: func(w http.ResponseWriter, r *http.Request) {
			writeData(w, `{"lines":[{"key":"PCurve_Power_Load","xy":[{"x":"noon","y":1}]}]}`)
		},
	})
	_, err := g.DayCurves(context.Background(), time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	var uerr *types.UpstreamError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "GetPlantPowerChart", uerr.Endpoint)
}

func TestGoodWeRetry(t *testing.T) {
	t.Run("HTTP 401 Refreshes Once", func(t *testing.T) {
		var calls atomic.Int32
		g, fp := newTestGoodWe(t, map[string]http.HandlerFunc{
			pointsPath: func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				writeData(w, `{"inverterPoints":[{"soc":"87%","out_pac":1200,"eday":"3.4","emonth":120.5}]}`)
			},
		})

		snap, err := g.PointSnapshot(context.Background())
		require.NoError(t, err)
		assert.EqualValues(t, 2, fp.logins.Load())
		assert.EqualValues(t, 2, calls.Load())
		assert.Equal(t, 87, snap.BatteryPercent)
		assert.Equal(t, 1200.0, snap.GenerationW)
		assert.Equal(t, 3.4, snap.DailyEnergyKWh)
		assert.Equal(t, 120.5, snap.MonthlyEnergyKWh)
	})

	t.Run("SEMS Code Refreshes Once", func(t *testing.T) {
		var calls atomic.Int32
		g, fp := newTestGoodWe(t, map[string]http.HandlerFunc{
			pointsPath: func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					w.Write([]byte(`{"hasError":true,"code":100002,"msg":"The authorization has expired","data":null}`))
					return
				}
				writeData(w, `{"inverterPoints":[{"soc":"15%","out_pac":"0","eday":0,"emonth":0}]}`)
			},
		})

		snap, err := g.PointSnapshot(context.Background())
		require.NoError(t, err)
		assert.EqualValues(t, 2, fp.logins.Load())
		assert.Equal(t, 15, snap.BatteryPercent)
	})

	t.Run("Gives Up After One Retry", func(t *testing.T) {
		var calls atomic.Int32
		g, fp := newTestGoodWe(t, map[string]http.HandlerFunc{
			pointsPath: func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(http.StatusUnauthorized)
			},
		})

		_, err := g.PointSnapshot(context.Background())
		var uerr *types.UpstreamError
		require.True(t, errors.As(err, &uerr))
		assert.Equal(t, http.StatusUnauthorized, uerr.Status)
		assert.EqualValues(t, 2, calls.Load())
		assert.EqualValues(t, 2, fp.logins.Load())
	})

	t.Run("Other Errors Are Not Retried", func(t *testing.T) {
		var calls atomic.Int32
		g, fp := newTestGoodWe(t, map[string]http.HandlerFunc{
			pointsPath: func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(http.StatusBadGateway)
			},
		})

		_, err := g.PointSnapshot(context.Background())
		var uerr *types.UpstreamError
		require.True(t, errors.As(err, &uerr))
		assert.Equal(t, http.StatusBadGateway, uerr.Status)
		assert.Equal(t, "GetInverterAllPoint", uerr.Endpoint)
		assert.EqualValues(t, 1, calls.Load())
		assert.EqualValues(t, 1, fp.logins.Load())
	})
}

func TestGoodWePointSnapshotNoPoints(t *testing.T) {
	g, _ := newTestGoodWe(t, map[string]http.HandlerFunc{
		pointsPath: func(w http.ResponseWriter, r *http.Request) {
			writeData(w, `{"inverterPoints":[]}`)
		},
	})
	_, err := g.PointSnapshot(context.Background())
	var uerr *types.UpstreamError
	assert.True(t, errors.As(err, &uerr))
}

func TestGoodWeCurrentLoad(t *testing.T) {
	var lines string
	g, _ := newTestGoodWe(t, map[string]http.HandlerFunc{
		plantChartPath: func(w http.ResponseWriter, r *http.Request) {
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			// 23:30 UTC is already the next day in the installation
			assert.Equal(t, "03/02/2024 00:00:00", body["date"])
			writeData(w, lines)
		},
	})
	g.now = func() time.Time { return time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC) }

	lines = `{"lines":[{"key":"PCurve_Power_Load","xy":[{"x":"00:00","y":180},{"x":"00:05","y":220}]}]}`
	load, err := g.CurrentLoad(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 220.0, load)

	lines = `{"lines":[]}`
	load, err = g.CurrentLoad(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, load)
}

func TestGoodWeInverterColumn(t *testing.T) {
	var calls atomic.Int32
	g, _ := newTestGoodWe(t, map[string]http.HandlerFunc{
		columnByDatePath: func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "06/01/2024 00:00:00", body["date"])
			assert.Equal(t, "Pac", body["column"])
			assert.Equal(t, "SN123", body["id"])
			writeData(w, `{"column1":[{"date":"06/01/2024 14:35:00","column":1500},{"date":"06/01/2024 14:40:00","column":"1550.5"}]}`)
		},
	})

	t.Run("Invalid Column", func(t *testing.T) {
		_, err := g.InverterColumn(context.Background(), time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), "Bogus")
		var verr *types.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "column", verr.Field)
		assert.EqualValues(t, 0, calls.Load())
	})

	t.Run("Parses Points", func(t *testing.T) {
		points, err := g.InverterColumn(context.Background(), time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), types.InverterColumnPac)
		require.NoError(t, err)
		require.Len(t, points, 2)
		assert.True(t, points[0].Timestamp.Equal(time.Date(2024, 6, 1, 12, 35, 0, 0, time.UTC)))
		assert.Equal(t, 1550.5, points[1].Value)
	})
}
