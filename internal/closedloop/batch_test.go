package closedloop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cleanScenario = `{
  "id": "clean",
  "durationHours": 10,
  "events": [
    {"eventId": "EMB-HIST", "type": "embedding", "hour": -1, "embeddingId": "EMB-HIST", "sourceEventId": "hist"}
  ]
}`

const brokenScenario = `{
  "id": "broken",
  "durationHours": 10,
  "events": [
    {"eventId": "B1", "type": "boundary_interaction", "hour": 5, "actorName": "Bot"}
  ]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidateFiles_PreservesOrder(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 12; i++ {
		content := cleanScenario
		if i%3 == 0 {
			content = brokenScenario
		}
		paths = append(paths, writeFile(t, dir, fmt.Sprintf("s%02d.scenario.json", i), content))
	}

	reports, err := ValidateFiles(context.Background(), paths, 4)
	require.NoError(t, err)
	require.Len(t, reports, len(paths))

	for i, r := range reports {
		assert.Equal(t, paths[i], r.Path)
		if i%3 == 0 {
			assert.Equal(t, "broken", r.ScenarioID)
			assert.Len(t, r.Errors, 1)
		} else {
			assert.Equal(t, "clean", r.ScenarioID)
			assert.Empty(t, r.Errors)
		}
	}
}

func TestValidateFiles_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.scenario.json", `{"id": `)
	missing := filepath.Join(dir, "missing.scenario.json")

	reports, err := ValidateFiles(context.Background(), []string{bad, missing}, 0)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	for _, r := range reports {
		assert.NotEmpty(t, r.LoadError)
		assert.True(t, r.Failed(false))
		assert.NotNil(t, r.Errors)
	}
}

func TestValidateFiles_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.scenario.json", cleanScenario)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ValidateFiles(ctx, []string{path}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummarize(t *testing.T) {
	reports := []FileReport{
		{Path: "ok", Report: Report{Warnings: []string{"w"}}},
		{Path: "bad", Report: Report{Errors: []string{"e1", "e2"}}},
		{Path: "unreadable", LoadError: "boom"},
	}

	sum := Summarize(reports, false)
	assert.Equal(t, BatchSummary{Files: 3, Passed: 1, Failed: 2, Errors: 3, Warnings: 1}, sum)

	strict := Summarize(reports, true)
	assert.Equal(t, 0, strict.Passed)
	assert.Equal(t, 3, strict.Failed)
}
