package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvandessel/hddl-sim/internal/models"
)

func newScenario(id string, events int) *models.Scenario {
	s := &models.Scenario{ID: id, Title: "Title " + id, DurationHours: 24}
	for i := 0; i < events; i++ {
		s.Events = append(s.Events, models.NewEvent("", float64(i), &models.Signal{}))
	}
	return s
}

// catalogs returns each implementation under test.
func catalogs(t *testing.T) map[string]Catalog {
	t.Helper()
	sqlite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), ".hddl", DBFileName))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Catalog{
		"memory": NewInMemoryCatalog(),
		"sqlite": sqlite,
	}
}

func TestCatalog_RegisterGet(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newScenario("support", 2)
			if err := c.Register(ctx, Entry{Name: "support", Kind: KindScenario, Scenario: s, Source: "/tmp/support.scenario.json"}); err != nil {
				t.Fatalf("Register() error = %v", err)
			}

			got, err := c.Get(ctx, "support")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.Kind != KindScenario {
				t.Errorf("Kind = %v, want scenario", got.Kind)
			}
			if got.Scenario.ID != "support" || len(got.Scenario.Events) != 2 {
				t.Errorf("Scenario = %+v", got.Scenario)
			}
			if got.Source != "/tmp/support.scenario.json" {
				t.Errorf("Source = %q", got.Source)
			}

			// Returned entries are independent copies.
			got.Scenario.ID = "mutated"
			again, _ := c.Get(ctx, "support")
			if again.Scenario.ID != "support" {
				t.Error("mutating a returned entry changed the catalog")
			}
		})
	}
}

func TestCatalog_RegisterReplaces(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := c.Register(ctx, Entry{Name: "p", Kind: KindPatch, Scenario: newScenario("v1", 1)}); err != nil {
				t.Fatalf("Register() error = %v", err)
			}
			if err := c.Register(ctx, Entry{Name: "p", Kind: KindPatch, Scenario: newScenario("v2", 3)}); err != nil {
				t.Fatalf("Register() error = %v", err)
			}

			infos, err := c.List(ctx, "")
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(infos) != 1 {
				t.Fatalf("List() returned %d entries, want 1", len(infos))
			}
			if infos[0].ScenarioID != "v2" || infos[0].Events != 3 {
				t.Errorf("List()[0] = %+v, want replaced entry", infos[0])
			}
		})
	}
}

func TestCatalog_RegisterRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
	}{
		{"no name", Entry{Kind: KindScenario, Scenario: newScenario("x", 0)}},
		{"bad kind", Entry{Name: "x", Kind: "draft", Scenario: newScenario("x", 0)}},
		{"no scenario", Entry{Name: "x", Kind: KindScenario}},
	}

	for name, c := range catalogs(t) {
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				if err := c.Register(context.Background(), tt.entry); err == nil {
					t.Error("expected error")
				}
			})
		}
	}
}

func TestCatalog_ListByKind(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, e := range []Entry{
				{Name: "zeta", Kind: KindScenario, Scenario: newScenario("z", 0)},
				{Name: "alpha", Kind: KindScenario, Scenario: newScenario("a", 0)},
				{Name: "fix", Kind: KindPatch, Scenario: newScenario("", 1)},
			} {
				if err := c.Register(ctx, e); err != nil {
					t.Fatalf("Register(%s) error = %v", e.Name, err)
				}
			}

			all, err := c.List(ctx, "")
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(all) != 3 || all[0].Name != "alpha" || all[1].Name != "fix" || all[2].Name != "zeta" {
				t.Errorf("List() = %+v, want sorted alpha, fix, zeta", all)
			}

			patches, err := c.List(ctx, KindPatch)
			if err != nil {
				t.Fatalf("List(patch) error = %v", err)
			}
			if len(patches) != 1 || patches[0].Name != "fix" {
				t.Errorf("List(patch) = %+v", patches)
			}
			if patches[0].ContentHash == "" {
				t.Error("expected content hash")
			}
		})
	}
}

func TestCatalog_RemoveAndClear(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, n := range []string{"a", "b"} {
				if err := c.Register(ctx, Entry{Name: n, Kind: KindScenario, Scenario: newScenario(n, 0)}); err != nil {
					t.Fatalf("Register() error = %v", err)
				}
			}

			if err := c.Remove(ctx, "a"); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}
			if _, err := c.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(removed) error = %v, want ErrNotFound", err)
			}
			if err := c.Remove(ctx, "a"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Remove(missing) error = %v, want ErrNotFound", err)
			}

			if err := c.Clear(ctx); err != nil {
				t.Fatalf("Clear() error = %v", err)
			}
			infos, _ := c.List(ctx, "")
			if len(infos) != 0 {
				t.Errorf("List() after Clear = %+v", infos)
			}
		})
	}
}

func TestSQLiteCatalog_Persists(t *testing.T) {
	ctx := context.Background()
	dbPath := DefaultPath(t.TempDir())

	c, err := OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	s := newScenario("kept", 1)
	if err := c.Register(ctx, Entry{Name: "kept", Kind: KindScenario, Scenario: s}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	c.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("catalog.db was not created: %v", err)
	}

	reopened, err := OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "kept")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if got.Scenario.ID != "kept" {
		t.Errorf("Scenario.ID = %q, want kept", got.Scenario.ID)
	}
}

func TestNameForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"scenarios/customer-support.scenario.json", "customer-support"},
		{"steward-handoff.patch.json", "steward-handoff"},
		{"/abs/insurance.yaml", "insurance"},
		{"plain.json", "plain"},
		{"x.scenario.yml", "x"},
		{"README", "README"},
		{".json", ".json"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := NameForPath(tt.path); got != tt.want {
				t.Errorf("NameForPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestKindForPath(t *testing.T) {
	if KindForPath("a/fix.patch.json") != KindPatch {
		t.Error("expected patch kind")
	}
	if KindForPath("a/base.scenario.json") != KindScenario {
		t.Error("expected scenario kind")
	}
}

func TestParseKind(t *testing.T) {
	for _, in := range []string{"", "scenario", "patch"} {
		if _, err := ParseKind(in); err != nil {
			t.Errorf("ParseKind(%q) error = %v", in, err)
		}
	}
	if _, err := ParseKind("draft"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "support.scenario.json")
	patch := filepath.Join(dir, "handoff.patch.yaml")
	if err := os.WriteFile(base, []byte(`{"id": "support", "durationHours": 24, "events": []}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(patch, []byte("durationHours: 48\nevents: []\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	c := NewInMemoryCatalog()
	loaded, err := LoadFiles(ctx, c, []string{base, patch})
	if err != nil {
		t.Fatalf("LoadFiles() error = %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d entries, want 2", len(loaded))
	}

	got, err := c.Get(ctx, "handoff")
	if err != nil {
		t.Fatalf("Get(handoff) error = %v", err)
	}
	if got.Kind != KindPatch || got.Scenario.DurationHours != 48 {
		t.Errorf("handoff entry = %+v", got)
	}
	if got.Source != patch {
		t.Errorf("Source = %q, want %q", got.Source, patch)
	}

	_, err = LoadFiles(ctx, c, []string{filepath.Join(dir, "missing.scenario.json")})
	if err == nil {
		t.Error("expected error for missing file")
	}
}
