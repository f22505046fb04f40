package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ppiankov/textio/internal/model"
)

// NoteScorer evaluates a single note and returns its score
type NoteScorer interface {
	ScoreNote(ctx context.Context, text string) (int, model.Evaluation, error)
}

// NoteJob scores one note from a batch
type NoteJob struct {
	Index  int
	Text   string
	Scorer NoteScorer
}

// Execute executes the scoring job
func (j *NoteJob) Execute(ctx context.Context) Result {
	score, eval, err := j.Scorer.ScoreNote(ctx, j.Text)
	return &NoteResult{
		Index:      j.Index,
		Text:       j.Text,
		Score:      score,
		Evaluation: eval,
		Error:      err,
	}
}

// NoteResult represents the result of a scoring job
type NoteResult struct {
	Index      int              `json:"index"`
	Text       string           `json:"text"`
	Score      int              `json:"score"`
	Evaluation model.Evaluation `json:"evaluation,omitempty"`
	Error      error            `json:"-"`
}

// GetError returns the error from the scoring result
func (r *NoteResult) GetError() error {
	return r.Error
}

// BatchProcessor scores many notes concurrently
type BatchProcessor struct {
	scorer      NoteScorer
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(scorer NoteScorer, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		scorer:      scorer,
		concurrency: concurrency,
	}
}

// ProcessNotes scores notes and returns results in input order
func (b *BatchProcessor) ProcessNotes(ctx context.Context, notes []string) []*NoteResult {
	if len(notes) == 0 {
		return []*NoteResult{}
	}

	jobs := make([]Job, len(notes))
	for i, note := range notes {
		jobs[i] = &NoteJob{Index: i, Text: note, Scorer: b.scorer}
	}

	results := NewPool(ctx, b.concurrency).Run(jobs)

	noteResults := make([]*NoteResult, 0, len(results))
	for _, result := range results {
		noteResults = append(noteResults, result.(*NoteResult))
	}
	sort.Slice(noteResults, func(i, j int) bool {
		return noteResults[i].Index < noteResults[j].Index
	})
	return noteResults
}

// ProcessFile reads notes from a file and scores them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*NoteResult, error) {
	notes, err := ReadNotesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read notes: %w", err)
	}

	return b.ProcessNotes(ctx, notes), nil
}

// ReadNotesFromFile reads notes from a file, one per line.
// Blank lines and # comments are skipped; duplicates are scored once.
func ReadNotesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var notes []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			notes = append(notes, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return notes, nil
}
