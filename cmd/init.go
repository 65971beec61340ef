package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/chaxai/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a chaxai configuration with an interactive wizard",
	Long:  `Runs an interactive wizard that picks the completion and embedding providers, data directory and server settings, then writes the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
