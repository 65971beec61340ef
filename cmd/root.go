package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "chaxai",
	Short: "Document question answering over your own knowledge base",
	Long: `ChaxAI keeps a library of uploaded documents, indexes them into a
semantic vector index, and answers questions grounded in their content
through an HTTP API, the command line, or MCP for AI agents.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "chaxai.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
