package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
)

// timeRounding keeps reported durations readable.
const timeRounding = 10 * time.Millisecond

var (
	ingestForce       bool
	ingestGlobs       []string
	ingestMaxFailures int
	ingestConcurrency int
	ingestJSON        bool
	ingestWatch       bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [directory...]",
	Short: "Ingest documents into the store",
	Long: `Discovers documents under the given directories, chunks and embeds
them, and stores the result. Unchanged documents are skipped unless
--force is set. The command fails when any document fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "reprocess documents even when unchanged")
	ingestCmd.Flags().StringSliceVar(&ingestGlobs, "glob", nil, "glob patterns to select files (default from config)")
	ingestCmd.Flags().IntVar(&ingestMaxFailures, "max-failures", 0, "halt the job after this many failed documents (0 = no limit)")
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 0, "documents processed in parallel (default from config)")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output the result as JSON")
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "keep watching the directories and re-ingest files as they change")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	req := domain.IngestionRequest{
		Directories:  args,
		GlobPatterns: ingestGlobs,
		Force:        ingestForce,
		MaxFailures:  ingestMaxFailures,
		Concurrency:  ingestConcurrency,
	}

	result, err := ingestService.Ingest(cmd.Context(), req)
	if err != nil && result == nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	if ingestJSON {
		if err := outputIngestJSON(cmd, result); err != nil {
			return err
		}
	} else {
		outputIngestSummary(cmd, result)
	}

	if err != nil {
		return err
	}
	if ingestWatch {
		return watchIngest(cmd, req)
	}
	if failed := result.FailedDocuments(); len(failed) > 0 {
		return fmt.Errorf("%d of %d documents failed", len(failed), result.Stats.Discovered)
	}
	return nil
}

// watchIngest blocks on the change stream after the initial pass,
// printing one line per re-ingested document until interrupted.
func watchIngest(cmd *cobra.Command, req domain.IngestionRequest) error {
	results, err := ingestService.Watch(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("starting watch: %w", err)
	}

	cmd.Println("Watching for changes, press Ctrl-C to stop")
	for res := range results {
		switch res.Outcome {
		case domain.OutcomeIngested:
			cmd.Printf("INGESTED %s: %d chunks\n", res.Location, res.Chunks)
		case domain.OutcomePartial:
			cmd.Printf("PARTIAL  %s: %d chunks stored, %d dropped\n", res.Location, res.Chunks, res.DroppedChunks)
		case domain.OutcomeSkipped:
			cmd.Printf("SKIPPED  %s: content unchanged\n", res.Location)
		case domain.OutcomeFailed:
			cmd.Printf("FAILED   %s: %s\n", res.Location, res.Error)
		}
	}
	return nil
}

func outputIngestJSON(cmd *cobra.Command, result *domain.IngestionResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputIngestSummary(cmd *cobra.Command, result *domain.IngestionResult) {
	cmd.Printf("Ingestion %s finished in %s\n", result.PipelineID, result.Duration().Round(timeRounding))
	cmd.Printf("  Discovered: %d\n", result.Stats.Discovered)
	cmd.Printf("  Ingested:   %d (%d chunks)\n", result.Stats.Ingested, result.Stats.ChunksCreated)
	cmd.Printf("  Skipped:    %d\n", result.Stats.Skipped)
	cmd.Printf("  Failed:     %d\n", result.Stats.Failed)

	for _, doc := range result.Documents {
		switch doc.Outcome {
		case domain.OutcomeFailed:
			cmd.Printf("  FAILED  %s: %s\n", doc.Location, doc.Error)
		case domain.OutcomePartial:
			cmd.Printf("  PARTIAL %s: %d chunks stored, %d dropped\n", doc.Location, doc.Chunks, doc.DroppedChunks)
		}
	}
}
