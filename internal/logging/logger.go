// Package logging sets up the hddl diagnostics. Human-readable progress goes
// through a slog text logger on stderr. Merges, session patches and MCP tool
// calls can also be kept in .hddl/audit.jsonl so a run can be
// reconstructed afterwards.
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace sits below slog.LevelDebug. Selecting it makes audit records
// carry whole validation reports and merge results instead of counts.
const LevelTrace = slog.LevelDebug - 4

// AuditFileName is the JSONL file written by NewAuditLog.
const AuditFileName = "audit.jsonl"

// ParseLevel reads a log.level setting. Anything other than debug or trace,
// in any case, is treated as info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a text logger on w that prints LevelTrace as "TRACE".
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// AuditLog is the append-only audit.jsonl writer. Each record is one JSON
// object tagged with a kind such as "merge" or "tool_call". Commands hold a
// possibly nil *AuditLog and call it unconditionally; nil means auditing is
// off. Concurrent Record calls never interleave within a line.
type AuditLog struct {
	mu    sync.Mutex
	file  *os.File
	trace bool
}

// NewAuditLog opens dir/AuditFileName for appending when level enables
// auditing (debug or trace), creating dir with owner-only permissions.
// Auditing is best effort: when it is off, or the file cannot be opened,
// the result is nil.
func NewAuditLog(dir string, level string) *AuditLog {
	lvl := ParseLevel(level)
	if lvl == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, AuditFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &AuditLog{file: f, trace: lvl <= LevelTrace}
}

// Trace reports whether the log was opened at trace level. Callers check it
// before attaching a full report to a record.
func (a *AuditLog) Trace() bool {
	return a != nil && a.trace
}

// Record appends fields as one line, adding "kind" and a UTC "time". Those
// two keys override any the caller supplied; fields itself is left as is.
// Encoding failures and records made after Close are dropped.
func (a *AuditLog) Record(kind string, fields map[string]any) {
	if a == nil {
		return
	}

	entry := make(map[string]any, len(fields)+2)
	maps.Copy(entry, fields)
	entry["kind"] = kind
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}
	_, _ = a.file.Write(data)
}

// Close stops recording. Later calls to Record or Close do nothing.
func (a *AuditLog) Close() {
	if a == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file != nil {
		a.file.Close()
		a.file = nil
	}
}
