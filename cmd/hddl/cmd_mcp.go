package main

import (
	"github.com/nvandessel/hddl-sim/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the MCP server over stdio",
		Long: `Run a Model Context Protocol server over stdio.

Tools: hddl_validate, hddl_merge, hddl_catalog_list, hddl_stats and
hddl_session_apply. The session started by hddl_session_apply is saved in
.hddl/ under --root and restored on the next start.

Logs go to stderr; stdout carries the protocol.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)
			audit := openAudit(root, cfg)
			defer audit.Close()

			ctx := cmd.Context()
			server, err := mcp.NewServer(ctx, &mcp.Config{
				Name:     "hddl",
				Version:  version,
				Root:     root,
				Settings: cfg,
				Logger:   logger,
				AuditLog: audit,
			})
			if err != nil {
				return err
			}

			logger.Info("mcp server starting", "root", root, "version", version)
			return server.Run(ctx)
		},
	}
}
