package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/textio/internal/worker"
)

var (
	concurrency  int
	batchOutput  string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Score many notes from a file in parallel",
	Long: `Batch scores notes concurrently against the default ruleset:
- Read notes from input file (one per line, # comments skipped)
- Score notes in parallel with a configurable worker count
- Write one JSON result per note, in input order

Nothing is persisted and no questions are issued.

Example:
  textio batch notes.txt
  textio batch notes.txt --concurrency 8 --output scores.json`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "write results to this JSON file instead of stdout")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
}

// batchLine is one scored note in the output
type batchLine struct {
	*worker.NoteResult
	Error string `json:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	rt, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  textio Batch Scoring\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Ruleset:      %s\n", cfg.Rules.Default)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Model:        %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "\n")

	processor := worker.NewBatchProcessor(rt.pipeline, concurrency)
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	lines := make([]batchLine, 0, len(results))
	failures := 0
	total := 0
	for _, r := range results {
		line := batchLine{NoteResult: r}
		if r.Error != nil {
			failures++
			line.Error = r.Error.Error()
			logger.Warn("note failed", zap.Int("index", r.Index), zap.Error(r.Error))
			fmt.Fprintf(os.Stderr, "✗ #%d: %v\n", r.Index+1, r.Error)
		} else {
			total += r.Score
			fmt.Fprintf(os.Stderr, "✓ #%d (score: %d/100)\n", r.Index+1, r.Score)
		}
		lines = append(lines, line)
	}

	out := cmd.OutOrStdout()
	if batchOutput != "" {
		f, err := os.Create(batchOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(lines); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	scored := len(results) - failures
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d notes\n", len(results))
	fmt.Fprintf(os.Stderr, "  Scored:    %d\n", scored)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failures)
	if scored > 0 {
		fmt.Fprintf(os.Stderr, "  Average:   %d/100\n", total/scored)
	}
	fmt.Fprintf(os.Stderr, "\n")
	return nil
}
