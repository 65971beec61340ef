package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/chaxai/internal/library"
	"github.com/ziadkadry99/chaxai/internal/progress"
	"github.com/ziadkadry99/chaxai/internal/walker"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Index local files and directories into the knowledge base",
	Long: `Copies the given files into the document store and indexes them.
Directories are walked recursively (honouring .gitignore) and glob patterns
such as "docs/**/*.md" are expanded. Unchanged files are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringSlice("include", nil, "only ingest files matching these globs")
	ingestCmd.Flags().StringSlice("exclude", nil, "skip files matching these globs")
	ingestCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	include, _ := cmd.Flags().GetStringSlice("include")
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	paths, err := walker.Expand(args, walker.Config{Include: include, Exclude: exclude})
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No supported files found.")
		return nil
	}

	reporter := progress.NewReporter("Ingesting")
	a, err := openApp(cmd.Context(), cfg, appOptions{progress: reporter.Progress})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := library.WithActor(cmd.Context(), "cli")
	reporter.Start(len(paths))
	results := a.library.Ingest(ctx, paths)
	reporter.Finish()

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		printFileResults(cmd.OutOrStdout(), results)
	}

	var failed int
	for _, r := range results {
		if r.Status == library.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to ingest", failed, len(results))
	}
	return nil
}

func printFileResults(out io.Writer, results []library.FileResult) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTATUS\tCHUNKS\tERROR")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Name, r.Status, r.Chunks, r.Error)
	}
	tw.Flush()
}
