package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/ziadkadry99/chaxai/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing question answering, document search and the document list as tools for AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context(), cfg, appOptions{answers: true})
		if err != nil {
			return err
		}
		defer a.Close()

		if len(a.library.List()) == 0 {
			fmt.Fprintln(os.Stderr, "Warning: no documents indexed yet. Run `chaxai ingest` first.")
		}

		mcpserver.Version = Version
		fmt.Fprintf(os.Stderr, "chaxai MCP server started on stdio (documents=%d)\n", len(a.library.List()))

		return mcpserver.NewServer(a.answers, a.library).Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
