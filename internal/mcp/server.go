// Package mcp provides an MCP (Model Context Protocol) server for hddl.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/hddl-sim/internal/catalog"
	"github.com/nvandessel/hddl-sim/internal/config"
	"github.com/nvandessel/hddl-sim/internal/logging"
	"github.com/nvandessel/hddl-sim/internal/merge"
	"github.com/nvandessel/hddl-sim/internal/ratelimit"
	"github.com/nvandessel/hddl-sim/internal/session"
)

// Server wraps the MCP SDK server and provides hddl-specific tools.
type Server struct {
	server   *sdk.Server
	catalog  catalog.Catalog
	session  *session.Session
	config   *config.HDDLConfig
	logger   *slog.Logger
	audit    *logging.AuditLog
	root     string
	stateDir string
	limiters *ratelimit.ToolLimiters
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "hddl")
	Version string // Server version
	Root    string // Project root directory

	// Settings defaults to config.Default().
	Settings *config.HDDLConfig

	// Catalog defaults to the SQLite catalog at Settings.CatalogPath(Root).
	Catalog catalog.Catalog

	Logger   *slog.Logger
	AuditLog *logging.AuditLog

	// RateLimits overrides the per-tool budgets. Nil uses ratelimit.DefaultToolRates.
	RateLimits map[string]ratelimit.Rate
}

// NewServer creates a new MCP server with hddl tools. The session is
// restored from <root>/.hddl if a previous server saved one.
func NewServer(ctx context.Context, cfg *Config) (*Server, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cat := cfg.Catalog
	if cat == nil {
		sqlite, err := catalog.OpenSQLite(ctx, settings.CatalogPath(cfg.Root))
		if err != nil {
			return nil, fmt.Errorf("failed to open catalog: %w", err)
		}
		cat = sqlite
	}

	stateDir := filepath.Join(cfg.Root, ".hddl")
	sess, err := session.LoadState(stateDir, cat, session.Options{
		Merger:   merge.NewMerger(merge.Config{EnvelopePolicy: settings.EnvelopePolicy(), Logger: logger}),
		Logger:   logger,
		AuditLog: cfg.AuditLog,
	})
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	logger.Debug("session state loaded", "path", session.StateFilePath(stateDir),
		"session", sess.ID(), "patches", len(sess.History()))

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized", "session", sess.ID())
		},
	})

	s := &Server{
		server:   mcpServer,
		catalog:  cat,
		session:  sess,
		config:   settings,
		logger:   logger,
		audit:    cfg.AuditLog,
		root:     cfg.Root,
		stateDir: stateDir,
		limiters: ratelimit.NewToolLimiters(cfg.RateLimits),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	if closeErr := s.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Close closes the catalog.
func (s *Server) Close() error {
	return s.catalog.Close()
}

// saveSession persists the session so a restarted server resumes it.
func (s *Server) saveSession() {
	if err := os.MkdirAll(s.stateDir, 0755); err != nil {
		s.logger.Warn("failed to create state directory", "error", err)
		return
	}
	if err := session.SaveState(s.session, s.stateDir); err != nil {
		s.logger.Warn("failed to save session state", "path", session.StateFilePath(s.stateDir), "error", err)
	}
}
