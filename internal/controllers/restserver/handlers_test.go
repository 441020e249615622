package restserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/chrissnell/energymonitor/internal/analytics"
	"github.com/chrissnell/energymonitor/internal/carbon"
	redisstore "github.com/chrissnell/energymonitor/internal/storage/redis"
	"github.com/chrissnell/energymonitor/pkg/config"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (http.Handler, *redisstore.Store) {
	t.Helper()

	mr := miniredis.RunT(t)
	store := redisstore.NewWithClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), "test", nil)
	t.Cleanup(func() { store.Close() })

	idx := carbon.Build([]carbon.Record{
		{Zone: "Eastern India", ObservedAt: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), DirectIntensity: 450, CarbonFreePct: 22.5, RenewablePct: 18},
	})
	engine := analytics.NewEngine(idx, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ctrl, err := NewController(ctx, &sync.WaitGroup{}, config.RESTServerData{}, engine, store, config.DefaultZones, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	return ctrl.Server.Handler, store
}

func seed(t *testing.T, store *redisstore.Store) {
	t.Helper()
	ctx := context.Background()
	june := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC).Format(time.RFC3339)

	runs := []struct {
		project, name string
		fields        map[string]any
	}{
		{"gpu", "r1", map[string]any{"energy_kwh": 1.0, "avg_power_watts": 100, "duration": 10, "timestamp": june}},
		{"gpu", "r2", map[string]any{"energy_kwh": 2.0, "avg_power_watts": 200, "duration": 20, "timestamp": june}},
		{"gpu", "r3", map[string]any{"energy_kwh": 4.0, "avg_power_watts": 300, "duration": 30, "timestamp": june}},
		{"cpu", "bad", map[string]any{"energy_kwh": "??", "avg_power_watts": 50, "duration": 5, "timestamp": june}},
	}
	for _, r := range runs {
		if _, err := store.SaveRun(ctx, "ada", r.project, r.name, r.fields); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.AddProject(ctx, "ada", "empty"); err != nil {
		t.Fatal(err)
	}
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: undecodable body %q: %v", method, target, rec.Body.String(), err)
	}
	return rec, out
}

func TestGetZones(t *testing.T) {
	h, _ := newTestServer(t)

	rec, body := do(t, h, http.MethodGet, "/zones", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	zones := body["zones"].([]any)
	if len(zones) != 4 {
		t.Fatalf("got %d zones", len(zones))
	}
	first := zones[0].(map[string]any)
	if first["name"] != "Eastern India" || first["label"] != "Eastern India (IN-EA)" {
		t.Errorf("first zone = %v", first)
	}
}

func TestProjectsLifecycle(t *testing.T) {
	h, _ := newTestServer(t)

	rec, _ := do(t, h, http.MethodGet, "/users/ada/projects", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("listing before any project: status = %d, want 404", rec.Code)
	}

	rec, _ = do(t, h, http.MethodPost, "/users/ada/projects", `{"projectName":"gpu"}`)
	if rec.Code != http.StatusCreated {
		t.Errorf("first add: status = %d", rec.Code)
	}
	rec, body := do(t, h, http.MethodPost, "/users/ada/projects", `{"projectName":"gpu"}`)
	if rec.Code != http.StatusOK || !strings.Contains(body["message"].(string), "already exists") {
		t.Errorf("second add: status = %d body = %v", rec.Code, body)
	}
	rec, _ = do(t, h, http.MethodPost, "/users/ada/projects", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("add without name: status = %d", rec.Code)
	}

	rec, body = do(t, h, http.MethodGet, "/users/ada/projects", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	names := body["projectNames"].([]any)
	if len(names) != 1 || names[0] != "gpu" {
		t.Errorf("projectNames = %v", names)
	}
}

func TestAddAndGetRuns(t *testing.T) {
	h, _ := newTestServer(t)

	rec, body := do(t, h, http.MethodPost, "/users/ada/projects/gpu/runs",
		`{"run":"r1","energy_kwh":1.25,"avg_power_watts":250,"duration":18,"timestamp":"2024-06-10T12:00:00Z"}`)
	if rec.Code != http.StatusCreated || body["run"] != "r1" {
		t.Fatalf("add run: status = %d body = %v", rec.Code, body)
	}
	rec, _ = do(t, h, http.MethodPost, "/users/ada/projects/gpu/runs", `[1,2]`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("add run with array body: status = %d", rec.Code)
	}

	rec, body = do(t, h, http.MethodGet, "/users/ada/projects/gpu/runs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	runs := body["runs"].([]any)
	if len(runs) != 1 {
		t.Fatalf("got %d runs", len(runs))
	}
	r := runs[0].(map[string]any)
	if r["run"] != "r1" || r["energy"] != 1.25 || r["power"] != 250.0 || r["duration"] != 18.0 || r["timestamp"] != "2024-06-10T12:00:00Z" {
		t.Errorf("run = %v", r)
	}

	rec, _ = do(t, h, http.MethodGet, "/users/ada/projects/nope/runs", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing project: status = %d", rec.Code)
	}
}

func TestAddRunWithEpochTimestamp(t *testing.T) {
	h, _ := newTestServer(t)

	rec, _ := do(t, h, http.MethodPost, "/users/ada/projects/gpu/runs",
		`{"run":"e1","energy_kwh":4,"avg_power_watts":250,"duration":60,"timestamp":1718020800000}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add run: status = %d", rec.Code)
	}

	rec, body := do(t, h, http.MethodGet, "/users/ada/projects/gpu/runs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	r := body["runs"].([]any)[0].(map[string]any)
	if r["timestamp"] != "2024-06-10T12:00:00Z" {
		t.Errorf("timestamp = %v, want 2024-06-10T12:00:00Z", r["timestamp"])
	}

	rec, body = do(t, h, http.MethodGet, "/users/ada/projects/gpu/carbon?zone=Eastern+India&run=e1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["status"] != "matched" || body["direct"] != 450.0 {
		t.Errorf("body = %v", body)
	}
	if body["total_emissions_g"] != 1800.0 {
		t.Errorf("total_emissions_g = %v, want 1800", body["total_emissions_g"])
	}
}

func TestGetAllProjectAverages(t *testing.T) {
	h, store := newTestServer(t)
	seed(t, store)

	rec, body := do(t, h, http.MethodGet, "/users/ada/averages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	averages := body["averages"].([]any)
	if len(averages) != 3 {
		t.Fatalf("got %d projects", len(averages))
	}

	gpu := averages[0].(map[string]any)
	if gpu["project"] != "gpu" || gpu["avg_energy"] != 2.333 || gpu["avg_power"] != 200.0 || gpu["avg_duration"] != 20.0 {
		t.Errorf("gpu = %v", gpu)
	}

	cpu := averages[1].(map[string]any)
	if cpu["project"] != "cpu" || cpu["avg_energy"] != nil || cpu["avg_power"] != 50.0 {
		t.Errorf("cpu = %v (malformed energy should be null)", cpu)
	}

	empty := averages[2].(map[string]any)
	if empty["project"] != "empty" || empty["avg_energy"] != nil || empty["avg_power"] != nil || empty["avg_duration"] != nil {
		t.Errorf("empty = %v", empty)
	}

	rec, _ = do(t, h, http.MethodGet, "/users/nobody/averages", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown user: status = %d", rec.Code)
	}
}

func TestGetProjectAverages(t *testing.T) {
	h, store := newTestServer(t)
	seed(t, store)

	rec, body := do(t, h, http.MethodGet, "/users/ada/projects/gpu/averages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["project"] != "gpu" || body["avg_power"] != 200.0 {
		t.Errorf("body = %v", body)
	}
}

func TestGetCarbon(t *testing.T) {
	h, store := newTestServer(t)
	seed(t, store)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		check      func(t *testing.T, body map[string]any)
	}{
		{
			name:       "matched run",
			target:     "/users/ada/projects/gpu/carbon?zone=Eastern+India&run=r3",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				if body["status"] != "matched" || body["direct"] != 450.0 || body["cfe"] != 22.5 || body["re"] != 18.0 {
					t.Errorf("body = %v", body)
				}
				if body["total_emissions_g"] != 1800.0 {
					t.Errorf("total_emissions_g = %v, want 1800", body["total_emissions_g"])
				}
			},
		},
		{
			name:       "zone without data",
			target:     "/users/ada/projects/gpu/carbon?zone=Northern+India&run=r3",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				if body["status"] != "unmatched" || body["direct"] != "N/A" || body["cfe"] != "N/A" || body["re"] != "N/A" {
					t.Errorf("body = %v", body)
				}
				if body["total_emissions_g"] != nil {
					t.Errorf("total_emissions_g = %v, want null", body["total_emissions_g"])
				}
			},
		},
		{
			name:       "no zone selected",
			target:     "/users/ada/projects/gpu/carbon?run=r3",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				if body["status"] != "idle" || body["total_emissions_g"] != nil {
					t.Errorf("body = %v", body)
				}
			},
		},
		{
			name:       "malformed energy",
			target:     "/users/ada/projects/cpu/carbon?zone=Eastern+India&run=bad",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				if body["status"] != "matched" || body["total_emissions_g"] != nil {
					t.Errorf("body = %v", body)
				}
			},
		},
		{
			name:       "all runs",
			target:     "/users/ada/projects/gpu/carbon?zone=Eastern+India",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				snaps := body["snapshots"].([]any)
				if len(snaps) != 3 {
					t.Fatalf("got %d snapshots", len(snaps))
				}
				if snaps[0].(map[string]any)["total_emissions_g"] != 450.0 {
					t.Errorf("first snapshot = %v", snaps[0])
				}
			},
		},
		{
			name:       "all runs without zone",
			target:     "/users/ada/projects/gpu/carbon",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				if snaps := body["snapshots"].([]any); len(snaps) != 0 {
					t.Errorf("expected no snapshots, got %v", snaps)
				}
			},
		},
		{
			name:       "unsupported zone",
			target:     "/users/ada/projects/gpu/carbon?zone=Atlantis",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing project",
			target:     "/users/ada/projects/nope/carbon?zone=Eastern+India",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, h, http.MethodGet, tt.target, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %v)", rec.Code, tt.wantStatus, body)
			}
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}

func TestNewControllerRequiresDependencies(t *testing.T) {
	if _, err := NewController(context.Background(), &sync.WaitGroup{}, config.RESTServerData{}, nil, nil, nil, zap.NewNop().Sugar()); err == nil {
		t.Errorf("expected an error without engine and store")
	}
}
