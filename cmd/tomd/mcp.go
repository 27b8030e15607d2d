package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/tomd/internal/app"
	"github.com/hyperifyio/tomd/internal/mcpserver"
)

func newMCPCmd(f *flags) *cobra.Command {
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP server commands",
		Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start a Model Context Protocol server exposing the to_markdown tool.

By default the server speaks JSON-RPC over stdio. Use --port to serve the
streamable HTTP transport instead.

Examples:
  tomd mcp serve
  tomd mcp serve --port 8080 --cache.dir .tomd-cache`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			port, err := cmd.Flags().GetInt("port")
			if err != nil {
				return fmt.Errorf("getting port flag: %w", err)
			}
			cfg, err := buildConfig(f, nil)
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			defer a.Close()

			server, err := mcpserver.NewServer(a.Pipeline(), app.BuildVersion)
			if err != nil {
				return err
			}
			if port > 0 {
				addr := fmt.Sprintf(":%d", port)
				log.Info().Str("addr", addr).Msg("MCP server listening")
				return server.RunHTTP(cmd.Context(), addr)
			}
			return server.Run(cmd.Context())
		},
	}
	serve.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(serve)
	return mcpCmd
}
