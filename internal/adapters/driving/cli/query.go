package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
)

var (
	queryTopK     int
	queryMinScore float64
	queryJSON     bool
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Retrieve chunks matching a query",
	Long: `Runs the three retrieval passes (semantic, full-text, pattern) and
prints the combined ranking. Identifier-like queries such as part
numbers weight exact matches higher.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "n", 0, "maximum number of results (default from config)")
	queryCmd.Flags().Float64Var(&queryMinScore, "min-score", 0, "drop results below this combined score (0 disables the configured threshold)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if retrieveService == nil {
		return errors.New("retrieve service not configured")
	}

	// An explicit --min-score 0 disables the configured threshold
	// rather than falling back to it.
	minScore := queryMinScore
	if minScore == 0 && cmd.Flags().Changed("min-score") {
		minScore = -1
	}

	ranked, err := retrieveService.Retrieve(cmd.Context(), domain.RetrievalQuery{
		Text:     args[0],
		TopK:     queryTopK,
		MinScore: minScore,
	})
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	if queryJSON {
		data, err := json.MarshalIndent(ranked, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(ranked) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i, chunk := range ranked {
		cmd.Printf("  [%d] %.3f (dense %.2f / lexical %.2f / pattern %.2f)\n",
			i+1, chunk.Score, chunk.Dense, chunk.Lexical, chunk.Pattern)
		if chunk.Metadata.Heading != "" {
			cmd.Printf("      %s\n", chunk.Metadata.Heading)
		}
		cmd.Printf("      %s\n", snippet(chunk.Text, 160))
		cmd.Println()
	}
	return nil
}

// snippet collapses whitespace and truncates to at most n runes.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) > n {
		return string(runes[:n]) + "..."
	}
	return text
}
