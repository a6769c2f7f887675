package mcp

import (
	"fmt"
	"time"
)

// sanitizeToolParams extracts safe metadata from tool parameters.
// It returns key names and non-sensitive value summaries, never content.
//
// Parameters are classified into three categories:
//   - Safe-value params: both key and value are safe to log (e.g., "kind", "strict")
//   - Presence-only params: key is logged but value is replaced with "(set)"
//   - Unknown params: not logged at all
//
// A "_param_count" key is always included to indicate how many params were provided.
func sanitizeToolParams(params map[string]any) map[string]string {
	if params == nil {
		return nil
	}

	result := make(map[string]string)

	safeValueParams := map[string]bool{
		"kind":   true,
		"strict": true,
		"policy": true,
		"reset":  true,
		"source": true,
	}

	// Inline documents and paths may be large or reveal local layout.
	presenceOnlyParams := map[string]bool{
		"document":    true,
		"name":        true,
		"base":        true,
		"patch":       true,
		"load":        true,
		"output_path": true,
	}

	for key, val := range params {
		if safeValueParams[key] {
			result[key] = fmt.Sprintf("%v", val)
		} else if presenceOnlyParams[key] {
			result[key] = "(set)"
		}
	}

	result["_param_count"] = fmt.Sprintf("%d", len(params))

	return result
}

// auditTool records a tool invocation in the audit log. Params with empty
// values are dropped before sanitizing.
func (s *Server) auditTool(toolName string, start time.Time, err error, params map[string]string) {
	if s.audit == nil {
		return
	}

	status := "success"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}

	raw := make(map[string]any, len(params))
	for k, v := range params {
		if v != "" {
			raw[k] = v
		}
	}

	fields := map[string]any{
		"tool":        toolName,
		"started":     start.UTC().Format(time.RFC3339Nano),
		"duration_ms": time.Since(start).Milliseconds(),
		"status":      status,
		"params":      sanitizeToolParams(raw),
	}
	if errMsg != "" {
		fields["error"] = errMsg
	}
	s.audit.Record("tool_call", fields)
}
