package mcp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/hddl-sim/internal/catalog"
	"github.com/nvandessel/hddl-sim/internal/closedloop"
	"github.com/nvandessel/hddl-sim/internal/merge"
	"github.com/nvandessel/hddl-sim/internal/models"
	"github.com/nvandessel/hddl-sim/internal/pathutil"
	"github.com/nvandessel/hddl-sim/internal/ratelimit"
	"github.com/nvandessel/hddl-sim/internal/stats"
)

// currentScenarioURI exposes the session's working scenario.
const currentScenarioURI = "hddl://session/current"

// registerTools registers all hddl MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "hddl_validate",
		Description: "Check a scenario's event graph for closed-loop integrity errors and realism warnings",
	}, s.handleValidate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "hddl_merge",
		Description: "Additively merge a patch onto a base scenario and validate the result",
	}, s.handleMerge)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "hddl_catalog_list",
		Description: "List the scenarios and patches registered in the project catalog",
	}, s.handleCatalogList)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "hddl_stats",
		Description: "Summarize a scenario: event counts by type, boundary kinds, embeddings, fleets and steward roles",
	}, s.handleStats)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "hddl_session_apply",
		Description: "Load a catalog scenario into the server session and apply catalog patches to it one at a time",
	}, s.handleSessionApply)
}

// registerResources registers MCP resources.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         currentScenarioURI,
		Name:        "hddl-session-current",
		Description: "The scenario currently loaded in the session, with all applied patches.",
		MIMEType:    "application/json",
	}, s.handleCurrentResource)
}

// handleCurrentResource returns the session's current scenario as JSON.
func (s *Server) handleCurrentResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	cur := s.session.Current()
	if cur == nil {
		return nil, fmt.Errorf("no scenario loaded: call hddl_session_apply with 'load' first")
	}
	data, err := models.Marshal(cur)
	if err != nil {
		return nil, fmt.Errorf("encoding scenario: %w", err)
	}
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{{
			URI:      currentScenarioURI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// resolve loads the scenario a ref points to.
func (s *Server) resolve(ctx context.Context, ref ScenarioRef) (*models.Scenario, string, error) {
	switch {
	case ref.Document != "" && ref.Name != "":
		return nil, "", fmt.Errorf("set either 'document' or 'name', not both")
	case ref.Document != "":
		sc, err := models.Parse([]byte(ref.Document))
		if err != nil {
			return nil, "", fmt.Errorf("parsing inline scenario: %w", err)
		}
		return sc, "inline", nil
	case ref.Name != "":
		e, err := s.catalog.Get(ctx, ref.Name)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return nil, "", fmt.Errorf("no catalog entry named %q: use hddl_catalog_list to see available names", ref.Name)
			}
			return nil, "", err
		}
		return e.Scenario, "catalog", nil
	default:
		return nil, "", fmt.Errorf("a scenario is required: set 'document' or 'name'")
	}
}

// handleValidate implements the hddl_validate tool.
func (s *Server) handleValidate(ctx context.Context, req *sdk.CallToolRequest, args HDDLValidateInput) (_ *sdk.CallToolResult, _ HDDLValidateOutput, retErr error) {
	start := time.Now()
	var source string
	defer func() {
		s.auditTool("hddl_validate", start, retErr, map[string]string{
			"source": source,
			"strict": fmt.Sprintf("%t", args.Strict),
		})
	}()

	if err := ratelimit.CheckLimit(s.limiters, "hddl_validate"); err != nil {
		return nil, HDDLValidateOutput{}, err
	}

	sc, source, err := s.resolve(ctx, args.ScenarioRef)
	if err != nil {
		return nil, HDDLValidateOutput{}, err
	}

	report := closedloop.Validate(sc)
	valid := report.Valid() && (!args.Strict || len(report.Warnings) == 0)

	return nil, HDDLValidateOutput{
		ScenarioID:   sc.ID,
		Valid:        valid,
		Errors:       report.Errors,
		Warnings:     report.Warnings,
		ErrorCount:   len(report.Errors),
		WarningCount: len(report.Warnings),
		Message:      reportMessage(report, valid),
	}, nil
}

// handleMerge implements the hddl_merge tool.
func (s *Server) handleMerge(ctx context.Context, req *sdk.CallToolRequest, args HDDLMergeInput) (_ *sdk.CallToolResult, _ HDDLMergeOutput, retErr error) {
	start := time.Now()
	defer func() {
		params := map[string]string{"policy": args.Policy}
		if args.OutputPath != "" {
			params["output_path"] = "(set)"
		}
		s.auditTool("hddl_merge", start, retErr, params)
	}()

	if err := ratelimit.CheckLimit(s.limiters, "hddl_merge"); err != nil {
		return nil, HDDLMergeOutput{}, err
	}

	policy := s.config.EnvelopePolicy()
	if args.Policy != "" {
		p, err := merge.ParseEnvelopePolicy(args.Policy)
		if err != nil {
			return nil, HDDLMergeOutput{}, err
		}
		policy = p
	}

	base, _, err := s.resolve(ctx, args.Base)
	if err != nil {
		return nil, HDDLMergeOutput{}, fmt.Errorf("base: %w", err)
	}
	patch, _, err := s.resolve(ctx, args.Patch)
	if err != nil {
		return nil, HDDLMergeOutput{}, fmt.Errorf("patch: %w", err)
	}

	res := merge.NewMerger(merge.Config{EnvelopePolicy: policy, Logger: s.logger}).Merge(base, patch)
	report := closedloop.Validate(res.Scenario)
	if s.audit.Trace() {
		s.audit.Record("merge_result", map[string]any{
			"scenario_id": res.Scenario.ID,
			"scenario":    res.Scenario,
			"report":      report,
		})
	}

	out := HDDLMergeOutput{
		Scenario:          res.Scenario,
		EnvelopeConflicts: res.EnvelopeConflicts,
		RekeyedEvents:     res.RekeyedEvents,
		Report:            report,
	}

	if args.OutputPath != "" {
		path := args.OutputPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.root, path)
		}
		roots, err := pathutil.DefaultOutputRoots(s.root)
		if err != nil {
			return nil, HDDLMergeOutput{}, err
		}
		if err := pathutil.ValidateOutputPath(path, roots); err != nil {
			return nil, HDDLMergeOutput{}, err
		}
		if err := models.WriteFile(path, res.Scenario); err != nil {
			return nil, HDDLMergeOutput{}, fmt.Errorf("writing merged scenario to %s: %w", pathutil.RedactPath(path), err)
		}
		out.OutputPath = path
	}

	out.Message = fmt.Sprintf("Merged scenario has %d event(s), %d envelope conflict(s), %d re-keyed event(s); %s",
		len(res.Scenario.Events), len(res.EnvelopeConflicts), len(res.RekeyedEvents),
		reportMessage(report, report.Valid()))

	return nil, out, nil
}

// handleCatalogList implements the hddl_catalog_list tool.
func (s *Server) handleCatalogList(ctx context.Context, req *sdk.CallToolRequest, args HDDLCatalogListInput) (_ *sdk.CallToolResult, _ HDDLCatalogListOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("hddl_catalog_list", start, retErr, map[string]string{"kind": args.Kind})
	}()

	if err := ratelimit.CheckLimit(s.limiters, "hddl_catalog_list"); err != nil {
		return nil, HDDLCatalogListOutput{}, err
	}

	kind, err := catalog.ParseKind(args.Kind)
	if err != nil {
		return nil, HDDLCatalogListOutput{}, err
	}

	entries, err := s.catalog.List(ctx, kind)
	if err != nil {
		return nil, HDDLCatalogListOutput{}, fmt.Errorf("failed to list catalog: %w", err)
	}

	return nil, HDDLCatalogListOutput{Entries: entries, Count: len(entries)}, nil
}

// handleStats implements the hddl_stats tool.
func (s *Server) handleStats(ctx context.Context, req *sdk.CallToolRequest, args HDDLStatsInput) (_ *sdk.CallToolResult, _ HDDLStatsOutput, retErr error) {
	start := time.Now()
	var source string
	defer func() {
		s.auditTool("hddl_stats", start, retErr, map[string]string{"source": source})
	}()

	if err := ratelimit.CheckLimit(s.limiters, "hddl_stats"); err != nil {
		return nil, HDDLStatsOutput{}, err
	}

	sc, source, err := s.resolve(ctx, args.ScenarioRef)
	if err != nil {
		return nil, HDDLStatsOutput{}, err
	}

	return nil, HDDLStatsOutput{Summary: stats.Summarize(sc)}, nil
}

// handleSessionApply implements the hddl_session_apply tool.
func (s *Server) handleSessionApply(ctx context.Context, req *sdk.CallToolRequest, args HDDLSessionApplyInput) (_ *sdk.CallToolResult, _ HDDLSessionApplyOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("hddl_session_apply", start, retErr, map[string]string{
			"load":  args.Load,
			"patch": args.Patch,
			"reset": fmt.Sprintf("%t", args.Reset),
		})
	}()

	if err := ratelimit.CheckLimit(s.limiters, "hddl_session_apply"); err != nil {
		return nil, HDDLSessionApplyOutput{}, err
	}

	if args.Load == "" && args.Patch == "" && !args.Reset {
		return nil, HDDLSessionApplyOutput{}, fmt.Errorf("nothing to do: set 'load', 'patch' or 'reset'")
	}

	var steps []string
	if args.Load != "" {
		if err := s.session.Load(ctx, args.Load); err != nil {
			return nil, HDDLSessionApplyOutput{}, fmt.Errorf("loading %s: %w", args.Load, err)
		}
		steps = append(steps, "loaded "+args.Load)
	}
	if args.Reset {
		if err := s.session.Reset(); err != nil {
			return nil, HDDLSessionApplyOutput{}, err
		}
		steps = append(steps, "reset to "+s.session.BaseName())
	}

	out := HDDLSessionApplyOutput{SessionID: s.session.ID()}
	if args.Patch != "" {
		outcome, err := s.session.ApplyPatch(ctx, args.Patch)
		if err != nil {
			return nil, HDDLSessionApplyOutput{}, fmt.Errorf("applying %s: %w", args.Patch, err)
		}
		out.Outcome = &outcome
		steps = append(steps, "applied "+args.Patch)
	}

	report, err := s.session.Validate()
	if err != nil {
		return nil, HDDLSessionApplyOutput{}, err
	}
	s.saveSession()

	out.Base = s.session.BaseName()
	out.History = s.session.History()
	out.Report = report
	out.Message = strings.Join(steps, ", ") + "; " + reportMessage(report, report.Valid())

	return nil, out, nil
}

// reportMessage summarizes a report for tool output.
func reportMessage(r closedloop.Report, valid bool) string {
	if len(r.Errors) == 0 && len(r.Warnings) == 0 {
		return "Scenario passes closed-loop validation"
	}
	verdict := "passes"
	if !valid {
		verdict = "fails"
	}
	return fmt.Sprintf("Scenario %s closed-loop validation with %d error(s) and %d warning(s)",
		verdict, len(r.Errors), len(r.Warnings))
}
