package main

import (
	"os"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/mcp"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/providers"
	"github.com/spf13/cobra"
)

var (
	serveHTTPAddr string
	serveWatch    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the extraction tools over MCP",
	Long: `Serve extract_record and list_templates as MCP tools.

Without --http the server speaks MCP over stdin and stdout, which is what desktop
MCP clients expect. With --http it serves the streamable HTTP transport at /mcp.

Examples:
  polyglot-extract serve --templates-dir ./templates
  polyglot-extract serve --templates-dir ./templates --http :8080`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		defer recoverPanic(cmd, &err)
		ctx := cmd.Context()
		if serveWatch {
			cfg.WatchTemplates = true
		}

		pipeline, err := providers.NewPipeline(ctx, cfg)
		if err != nil {
			return err
		}
		s := mcp.NewServer(pipeline, version)

		if serveHTTPAddr != "" {
			return mcp.ServeHTTP(ctx, s, serveHTTPAddr)
		}
		return mcp.ServeStdio(ctx, s, os.Stdin, os.Stdout)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHTTPAddr, "http", "", "listen address for the streamable HTTP transport")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "reload templates when files in the templates directory change")
}
