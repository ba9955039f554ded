package main

import (
	"github.com/spf13/cobra"

	"github.com/ironsheep/colorcard-mcp/internal/logging"
	"github.com/ironsheep/colorcard-mcp/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout. This is also what runs when no
command is given, so MCP clients can launch the binary directly.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	p, err := loadPipeline()
	if err != nil {
		return err
	}
	logging.New("main").Info("starting colorcard MCP server over stdio",
		"version", version, "built", buildTime, "commit", gitCommit,
		"reference_table", p.Table().Name())
	return server.New(p, version).Run()
}
