// colorcard-mcp serves color card calibration over MCP and runs the same
// pipeline from the command line.
//
// Usage:
//
//	colorcard-mcp [serve] [--config=<path>]
//	colorcard-mcp correct <image> [-o <corrected>]
//	colorcard-mcp apply <image> -c <report.json> -o <corrected>
//	colorcard-mcp batch <image>... [--parallel=4]
//	colorcard-mcp render-target <output> [--scale=4]
//	colorcard-mcp version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ironsheep/colorcard-mcp/internal/calibrate"
	"github.com/ironsheep/colorcard-mcp/internal/logging"
)

// Version information - set by ldflags during build
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var rootFlags struct {
	config    string
	logLevel  string
	logFormat string
}

var rootCmd = &cobra.Command{
	Use:   "colorcard-mcp",
	Short: "Color card calibration over MCP",
	Long: `colorcard-mcp finds a color card in a photo, fits tone, white balance and a
3x3 color correction matrix to its patches, and reports CIEDE2000 error.

Run without a command it serves MCP over stdin/stdout. Logs go to stderr.`,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: initLogging,
	RunE:              runServe,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.config, "config", "", "Path to pipeline config YAML (default: built-in defaults)")
	f.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error (default: $"+logging.EnvLevel+" or info)")
	f.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(correctCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(renderTargetCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = version
}

func initLogging(_ *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(rootFlags.logLevel)
	if err != nil {
		return err
	}
	if rootFlags.logFormat != "text" && rootFlags.logFormat != "json" {
		return fmt.Errorf("unknown log format %q", rootFlags.logFormat)
	}
	logging.Init(level, rootFlags.logFormat)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", calibrate.ErrorKind(err), err)
		os.Exit(1)
	}
}
