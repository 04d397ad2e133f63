package main

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/query-reformulator/internal/adapters/mcp"
	"github.com/kirillkom/query-reformulator/internal/bootstrap"
)

func newMCPCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the reformulation tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := global.loadConfig()
			logger := newLogger(cfg)

			app, err := bootstrap.New(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			logger.Info("mcp_stdio_serving", "methods", len(app.Service.Methods()))
			return server.ServeStdio(mcpadapter.NewServer(app.Service, cfg.RequestLimits()))
		},
	}
}
