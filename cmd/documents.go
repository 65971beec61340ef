package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/chaxai/internal/library"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the indexed documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		docs := a.library.List()
		out := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(docs)
		}
		if len(docs) == 0 {
			fmt.Fprintln(out, "No documents indexed. Run `chaxai ingest` or upload through the API.")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSIZE\tCHUNKS\tINDEXED")
		for _, d := range docs {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", d.Name, d.Size, d.Chunks, d.IndexedAt.Local().Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove a document from the store and the index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := library.WithActor(cmd.Context(), "cli")
		if err := a.library.Remove(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the index from the document store",
	Long:  `Re-extracts and re-embeds every stored document, replacing the index atomically. Documents that can no longer be indexed are dropped and reported.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := library.WithActor(cmd.Context(), "cli")
		report, err := a.library.Reindex(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Reindexed %d documents (%d chunks) in %dms\n", report.Documents, report.Chunks, report.DurationMS)
		if len(report.Failed) > 0 {
			fmt.Fprintln(out, "\nFailed:")
			printFileResults(out, report.Failed)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().Bool("json", false, "output documents as JSON")
	rootCmd.AddCommand(listCmd, removeCmd, reindexCmd)
}
