package main

import (
	"github.com/spf13/cobra"

	"github.com/xhad/annotscan/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server",
	Long:  `Start the Model Context Protocol server on stdio. It offers the highlight_annotations tool.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := parseFlags(cmd, nil)
		if err != nil {
			return err
		}
		server, err := mcp.NewServer(mcp.Config{
			OutputBase: config.Output.BaseDir,
			Highlight:  config.HighlightStyle(),
			Version:    version,
		})
		if err != nil {
			return err
		}
		return server.Serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
