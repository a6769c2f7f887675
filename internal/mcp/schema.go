package mcp

import (
	"github.com/nvandessel/hddl-sim/internal/catalog"
	"github.com/nvandessel/hddl-sim/internal/closedloop"
	"github.com/nvandessel/hddl-sim/internal/merge"
	"github.com/nvandessel/hddl-sim/internal/session"
	"github.com/nvandessel/hddl-sim/internal/stats"
)

// ScenarioRef names a scenario either inline or by catalog entry.
// Exactly one of the two fields must be set.
type ScenarioRef struct {
	Document string `json:"document,omitempty" jsonschema:"Scenario as an inline JSON document"`
	Name     string `json:"name,omitempty" jsonschema:"Name of a catalog entry"`
}

// HDDLValidateInput defines the input for hddl_validate tool.
type HDDLValidateInput struct {
	ScenarioRef
	Strict bool `json:"strict,omitempty" jsonschema:"Treat warnings as failures (default: false)"`
}

// HDDLValidateOutput defines the output for hddl_validate tool.
type HDDLValidateOutput struct {
	ScenarioID   string   `json:"scenario_id" jsonschema:"id of the validated scenario"`
	Valid        bool     `json:"valid" jsonschema:"Whether the scenario passes"`
	Errors       []string `json:"errors" jsonschema:"Integrity violations"`
	Warnings     []string `json:"warnings" jsonschema:"Realism gaps"`
	ErrorCount   int      `json:"error_count" jsonschema:"Number of errors"`
	WarningCount int      `json:"warning_count" jsonschema:"Number of warnings"`
	Message      string   `json:"message" jsonschema:"Human-readable summary"`
}

// HDDLMergeInput defines the input for hddl_merge tool.
type HDDLMergeInput struct {
	Base       ScenarioRef `json:"base" jsonschema:"Base scenario"`
	Patch      ScenarioRef `json:"patch" jsonschema:"Patch to apply on top of the base"`
	Policy     string      `json:"policy,omitempty" jsonschema:"Envelope collision policy: 'base_wins' or 'patch_wins' (default from config)"`
	OutputPath string      `json:"output_path,omitempty" jsonschema:"File to write the merged scenario to (must be inside the project root or ~/.hddl)"`
}

// HDDLMergeOutput defines the output for hddl_merge tool.
type HDDLMergeOutput struct {
	Scenario          any                      `json:"scenario" jsonschema:"The merged scenario"`
	EnvelopeConflicts []merge.EnvelopeConflict `json:"envelope_conflicts" jsonschema:"Envelopes defined differently by base and patch"`
	RekeyedEvents     []merge.RekeyedEvent     `json:"rekeyed_events" jsonschema:"Patch events whose ids were versioned"`
	Report            closedloop.Report        `json:"report" jsonschema:"Validation of the merged scenario"`
	OutputPath        string                   `json:"output_path,omitempty" jsonschema:"Where the merged scenario was written"`
	Message           string                   `json:"message" jsonschema:"Human-readable summary"`
}

// HDDLCatalogListInput defines the input for hddl_catalog_list tool.
type HDDLCatalogListInput struct {
	Kind string `json:"kind,omitempty" jsonschema:"Filter by kind: 'scenario' or 'patch' (default: all)"`
}

// HDDLCatalogListOutput defines the output for hddl_catalog_list tool.
type HDDLCatalogListOutput struct {
	Entries []catalog.EntryInfo `json:"entries" jsonschema:"Catalog entries sorted by name"`
	Count   int                 `json:"count" jsonschema:"Number of entries"`
}

// HDDLStatsInput defines the input for hddl_stats tool.
type HDDLStatsInput struct {
	ScenarioRef
}

// HDDLStatsOutput defines the output for hddl_stats tool.
type HDDLStatsOutput struct {
	Summary stats.Summary `json:"summary" jsonschema:"Scenario statistics"`
}

// HDDLSessionApplyInput defines the input for hddl_session_apply tool.
type HDDLSessionApplyInput struct {
	Load  string `json:"load,omitempty" jsonschema:"Catalog scenario to load first, discarding the current session"`
	Patch string `json:"patch,omitempty" jsonschema:"Catalog patch to apply to the current scenario"`
	Reset bool   `json:"reset,omitempty" jsonschema:"Return to the loaded scenario before applying (default: false)"`
}

// HDDLSessionApplyOutput defines the output for hddl_session_apply tool.
type HDDLSessionApplyOutput struct {
	SessionID string            `json:"session_id" jsonschema:"Session identifier"`
	Base      string            `json:"base" jsonschema:"Name of the loaded scenario"`
	History   []string          `json:"history" jsonschema:"Applied patches, oldest first"`
	Outcome   *session.Outcome  `json:"outcome,omitempty" jsonschema:"Result of the applied patch"`
	Report    closedloop.Report `json:"report" jsonschema:"Validation of the current scenario"`
	Message   string            `json:"message" jsonschema:"Human-readable summary"`
}
