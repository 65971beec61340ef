package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/chaxai/internal/analytics"
	"github.com/ziadkadry99/chaxai/internal/audit"
	"github.com/ziadkadry99/chaxai/internal/db"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete analytics and audit records older than a retention window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		if days < 1 {
			return fmt.Errorf("--days must be at least 1")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := db.Open(cfg.DBPath())
		if err != nil {
			return err
		}
		defer database.Close()

		cutoff := time.Now().AddDate(0, 0, -days)
		usage, err := analytics.NewStore(database).DeleteBefore(cmd.Context(), cutoff)
		if err != nil {
			return err
		}
		trail, err := audit.NewStore(database).DeleteBefore(cmd.Context(), cutoff)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d analytics and %d audit records older than %s\n",
			usage, trail, cutoff.Format("2006-01-02"))
		return nil
	},
}

func init() {
	pruneCmd.Flags().Int("days", 90, "keep records from the last N days")
	rootCmd.AddCommand(pruneCmd)
}
