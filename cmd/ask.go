package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/chaxai/internal/rag"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the indexed documents",
	Long:  `Retrieves the chunks most relevant to the question and asks the configured model to answer from them, listing the sources used.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().Bool("json", false, "output the answer as JSON")
	askCmd.Flags().Bool("html", false, "render the answer Markdown as HTML")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	htmlOutput, _ := cmd.Flags().GetBool("html")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), cfg, appOptions{answers: true})
	if err != nil {
		return err
	}
	defer a.Close()

	ans, err := a.answers.Answer(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	if htmlOutput {
		if ans.AnswerHTML, err = rag.RenderHTML(ans.Answer); err != nil {
			return fmt.Errorf("rendering answer: %w", err)
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(ans)
	}
	printAnswer(cmd.OutOrStdout(), ans)
	return nil
}

func printAnswer(out io.Writer, ans *rag.Answer) {
	if ans.AnswerHTML != "" {
		fmt.Fprintln(out, ans.AnswerHTML)
	} else {
		fmt.Fprintln(out, ans.Answer)
	}
	if len(ans.SourceDetails) == 0 {
		return
	}
	fmt.Fprintf(out, "\nSources (confidence %.1f%%):\n", ans.Confidence)
	for i, d := range ans.SourceDetails {
		fmt.Fprintf(out, "  %d. [%.2f] %s#%d\n", i+1, d.Score, d.Source, d.Chunk)
		fmt.Fprintf(out, "     %s\n", d.Preview)
	}
}
