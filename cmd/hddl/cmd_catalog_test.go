package main

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/hddl-sim/internal/catalog"
	"github.com/nvandessel/hddl-sim/internal/models"
)

// importFixtures writes a scenario and a patch under root and imports them.
func importFixtures(t *testing.T, root string) {
	t.Helper()
	writeFile(t, root, "scenarios/claims.scenario.json", brokenScenario)
	writeFile(t, root, "patches/fix.patch.json", fixPatch)

	stdout, _, err := execute(t, newCatalogCmd(), "catalog", "import", "--root", root)
	if err != nil {
		t.Fatalf("catalog import failed: %v", err)
	}
	if !strings.Contains(stdout, "Imported 2 file(s)") {
		t.Fatalf("unexpected import output:\n%s", stdout)
	}
}

func TestCatalogCmd_ImportAndList(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	importFixtures(t, tmpDir)

	stdout, _, err := execute(t, newCatalogCmd(), "catalog", "list", "--root", tmpDir, "--json")
	if err != nil {
		t.Fatalf("catalog list failed: %v", err)
	}
	var result struct {
		Entries []catalog.EntryInfo `json:"entries"`
		Count   int                 `json:"count"`
	}
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if result.Count != 2 {
		t.Fatalf("Count = %d, want 2", result.Count)
	}
	if result.Entries[0].Name != "claims" || result.Entries[0].Kind != catalog.KindScenario {
		t.Errorf("first entry = %+v", result.Entries[0])
	}
	if result.Entries[1].Name != "fix" || result.Entries[1].Kind != catalog.KindPatch {
		t.Errorf("second entry = %+v", result.Entries[1])
	}

	stdout, _, err = execute(t, newCatalogCmd(), "catalog", "list", "--root", tmpDir, "--kind", "patch")
	if err != nil {
		t.Fatalf("catalog list --kind failed: %v", err)
	}
	if strings.Contains(stdout, "claims") || !strings.Contains(stdout, "fix") {
		t.Errorf("kind filter not applied:\n%s", stdout)
	}

	if _, _, err := execute(t, newCatalogCmd(), "catalog", "list", "--root", tmpDir, "--kind", "other"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestCatalogCmd_ShowRemoveClear(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	importFixtures(t, tmpDir)

	stdout, _, err := execute(t, newCatalogCmd(), "catalog", "show", "claims", "--root", tmpDir)
	if err != nil {
		t.Fatalf("catalog show failed: %v", err)
	}
	sc, err := models.Parse([]byte(stdout))
	if err != nil {
		t.Fatalf("show should print scenario JSON: %v", err)
	}
	if sc.ID != "broken" {
		t.Errorf("ID = %q, want broken", sc.ID)
	}

	if _, _, err := execute(t, newCatalogCmd(), "catalog", "remove", "fix", "--root", tmpDir); err != nil {
		t.Fatalf("catalog remove failed: %v", err)
	}
	if _, _, err := execute(t, newCatalogCmd(), "catalog", "show", "fix", "--root", tmpDir); err == nil {
		t.Error("removed entry should not be shown")
	}
	if _, _, err := execute(t, newCatalogCmd(), "catalog", "remove", "fix", "--root", tmpDir); err == nil {
		t.Error("removing a missing entry should fail")
	}

	if _, _, err := execute(t, newCatalogCmd(), "catalog", "clear", "--root", tmpDir); err == nil {
		t.Error("clear without --yes should fail")
	}
	if _, _, err := execute(t, newCatalogCmd(), "catalog", "clear", "--yes", "--root", tmpDir); err != nil {
		t.Fatalf("catalog clear failed: %v", err)
	}
	stdout, _, err = execute(t, newCatalogCmd(), "catalog", "list", "--root", tmpDir)
	if err != nil {
		t.Fatalf("catalog list failed: %v", err)
	}
	if !strings.Contains(stdout, "Catalog is empty") {
		t.Errorf("expected empty catalog, got:\n%s", stdout)
	}
}

func TestCatalogCmd_ConfiguredPath(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	dbPath := filepath.Join(tmpDir, "shared", "catalog.db")
	t.Setenv("HDDL_CATALOG_PATH", dbPath)
	importFixtures(t, tmpDir)

	cat, err := catalog.OpenSQLite(t.Context(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer cat.Close()
	if _, err := cat.Get(t.Context(), "claims"); err != nil {
		t.Errorf("entry should be stored at HDDL_CATALOG_PATH: %v", err)
	}
}

func TestApplyCmd(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	importFixtures(t, tmpDir)
	out := filepath.Join(tmpDir, "applied.scenario.json")

	stdout, _, err := execute(t, newApplyCmd(), "apply", "claims", "--patch", "fix", "-o", out, "--root", tmpDir)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if !strings.Contains(stdout, "Applied fix: 3 events, 0 error(s)") {
		t.Errorf("unexpected output:\n%s", stdout)
	}
	if !strings.Contains(stdout, "[PASS] claims (broken)") {
		t.Errorf("missing final banner:\n%s", stdout)
	}

	applied, err := models.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if len(applied.Events) != 3 {
		t.Errorf("expected 3 events, got %d", len(applied.Events))
	}
}

func TestApplyCmd_FailsWithoutFix(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	importFixtures(t, tmpDir)

	_, stderr, err := execute(t, newApplyCmd(), "apply", "claims", "--root", tmpDir)
	if !errors.Is(err, errValidationFailed) {
		t.Fatalf("expected errValidationFailed, got %v", err)
	}
	if !strings.Contains(stderr, "has no embedding") {
		t.Errorf("errors should go to stderr, got %q", stderr)
	}

	if _, _, err := execute(t, newApplyCmd(), "apply", "claims", "--patch", "missing", "--root", tmpDir); err == nil {
		t.Error("expected error for unknown patch")
	}
	if _, _, err := execute(t, newApplyCmd(), "apply", "missing", "--root", tmpDir); err == nil {
		t.Error("expected error for unknown scenario")
	}
}
