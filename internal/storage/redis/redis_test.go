package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/chrissnell/energymonitor/internal/storage"
	"github.com/chrissnell/energymonitor/pkg/config"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := NewWithClient(client, "test", nil)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestAddProjectAndList(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		added, err := s.AddProject(ctx, "ada@example.com", name)
		if err != nil {
			t.Fatalf("AddProject(%q) error = %v", name, err)
		}
		if !added {
			t.Errorf("AddProject(%q) reported existing project", name)
		}
	}

	added, err := s.AddProject(ctx, "ada@example.com", "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Errorf("second AddProject(alpha) should report it already existed")
	}

	names, err := s.ListProjects(ctx, "ada@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(names, ",") != "zeta,alpha,mid" {
		t.Errorf("ListProjects() = %v, want creation order", names)
	}
}

func TestMissingUserAndProject(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.ListProjects(ctx, "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ListProjects(nobody) error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetAllProjects(ctx, "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetAllProjects(nobody) error = %v, want ErrNotFound", err)
	}

	if _, err := s.AddProject(ctx, "ada", "exists"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetRuns(ctx, "ada", "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetRuns(missing) error = %v, want ErrNotFound", err)
	}

	runs, err := s.GetRuns(ctx, "ada", "exists")
	if err != nil {
		t.Fatalf("GetRuns(exists) error = %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("new project should have no runs, got %d", len(runs))
	}
}

func TestSaveAndGetRuns(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

	if _, err := s.SaveRun(ctx, "ada", "llm", "run-b", map[string]any{
		"energy_kwh":      2.5,
		"avg_power_watts": 310,
		"duration":        "42.5",
		"timestamp":       ts.Format(time.RFC3339),
	}); err != nil {
		t.Fatalf("SaveRun error = %v", err)
	}
	if _, err := s.SaveRun(ctx, "ada", "llm", "run-a", map[string]any{
		"energy_kwh": "n/a",
		"timestamp":  ts,
	}); err != nil {
		t.Fatalf("SaveRun error = %v", err)
	}

	generated, err := s.SaveRun(ctx, "ada", "llm", "", map[string]any{"energy_kwh": 1})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(generated, "run-") || len(generated) <= len("run-") {
		t.Errorf("generated run name = %q", generated)
	}

	runs, err := s.GetRuns(ctx, "ada", "llm")
	if err != nil {
		t.Fatalf("GetRuns error = %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
	if runs[0].Name != "run-a" || runs[1].Name != "run-b" {
		t.Errorf("runs not sorted by name: %q, %q", runs[0].Name, runs[1].Name)
	}

	b := runs[1]
	if b.EnergyKWh != 2.5 || b.AvgPowerWatts != 310 || b.DurationSeconds != 42.5 {
		t.Errorf("run-b decoded as %+v", b)
	}
	if !b.Timestamp.Equal(ts) {
		t.Errorf("run-b timestamp = %v, want %v", b.Timestamp, ts)
	}

	a := runs[0]
	if !math.IsNaN(a.EnergyKWh) {
		t.Errorf("run-a energy should be NaN, got %v", a.EnergyKWh)
	}
	if !a.Timestamp.Equal(ts) {
		t.Errorf("run-a timestamp = %v, want %v", a.Timestamp, ts)
	}
}

func TestGetAllProjects(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveRun(ctx, "ada", "second", "r1", map[string]any{"energy_kwh": 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddProject(ctx, "ada", "empty"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveRun(ctx, "ada", "second", "r2", map[string]any{"energy_kwh": 3}); err != nil {
		t.Fatal(err)
	}

	projects, err := s.GetAllProjects(ctx, "ada")
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 2 {
		t.Fatalf("got %d projects, want 2", len(projects))
	}
	if projects[0].Project != "second" || len(projects[0].Runs) != 2 {
		t.Errorf("first project = %+v", projects[0])
	}
	if projects[1].Project != "empty" || len(projects[1].Runs) != 0 {
		t.Errorf("second project = %+v", projects[1])
	}
}

func TestUndecodableRunBecomesNaN(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddProject(ctx, "ada", "p"); err != nil {
		t.Fatal(err)
	}
	mr.HSet("test:user:ada:project:p:runs", "corrupt", "\xc1")

	runs, err := s.GetRuns(ctx, "ada", "p")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || !math.IsNaN(runs[0].EnergyKWh) || !runs[0].Timestamp.IsZero() {
		t.Errorf("corrupt run decoded as %+v", runs)
	}
}

func TestNewUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := New(ctx, config.RedisData{Addr: addr}, zap.NewNop().Sugar()); err == nil {
		t.Errorf("expected an error connecting to a closed server")
	}
}

func TestNamesWithColonsDoNotAlias(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// Unescaped, both of these would share the key
	// test:user:ada:project:x:project:y:runs.
	if _, err := s.SaveRun(ctx, "ada:project:x", "y", "r1", map[string]any{"energy_kwh": 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveRun(ctx, "ada", "x:project:y", "r2", map[string]any{"energy_kwh": 2}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		user, project, wantRun string
	}{
		{"ada:project:x", "y", "r1"},
		{"ada", "x:project:y", "r2"},
	}
	for _, tt := range tests {
		runs, err := s.GetRuns(ctx, tt.user, tt.project)
		if err != nil {
			t.Fatalf("GetRuns(%q, %q) error = %v", tt.user, tt.project, err)
		}
		if len(runs) != 1 || runs[0].Name != tt.wantRun {
			t.Errorf("GetRuns(%q, %q) = %+v, want only %s", tt.user, tt.project, runs, tt.wantRun)
		}
	}

	names, err := s.ListProjects(ctx, "ada")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "x:project:y" {
		t.Errorf("ListProjects(ada) = %v", names)
	}
}

func TestSaveRunKeepsJSONNumbers(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveRun(ctx, "ada", "p", "e1", map[string]any{
		"energy_kwh": json.Number("4"),
		"timestamp":  json.Number("1718020800000"),
	}); err != nil {
		t.Fatal(err)
	}

	runs, err := s.GetRuns(ctx, "ada", "p")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs", len(runs))
	}
	if runs[0].EnergyKWh != 4 {
		t.Errorf("EnergyKWh = %v", runs[0].EnergyKWh)
	}
	if want := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC); !runs[0].Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", runs[0].Timestamp, want)
	}
}
