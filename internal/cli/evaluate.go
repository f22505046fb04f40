package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/textio/internal/model"
)

var (
	evalRuleset     string
	evalAnswersFile string
	evalRewriteUUID string
	evalTimeout     time.Duration
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate [file]",
	Short: "Evaluate or rewrite one note and print the JSON result",
	Long: `Evaluate reads a note from a file (or stdin when the file is "-" or
omitted), runs it through the pipeline and prints the result as JSON.

With --answers the note is rewritten instead. The answers file holds either a
list of {"rewriteId","answer"} objects or a {"criterion": "answer"} map.

Example:
  textio evaluate note.txt --ruleset fsr_notes
  echo "pump broke" | textio evaluate
  textio evaluate note.txt --answers answers.json --rewrite-uuid <uuid>`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evalRuleset, "ruleset", "", "ruleset name (default from rules.default)")
	evaluateCmd.Flags().StringVar(&evalAnswersFile, "answers", "", "JSON answers file; switches to rewrite")
	evaluateCmd.Flags().StringVar(&evalRewriteUUID, "rewrite-uuid", "", "rewriteUuid returned by the evaluation")
	evaluateCmd.Flags().DurationVar(&evalTimeout, "timeout", 3*time.Minute, "overall timeout")
}

func readNote(args []string, stdin io.Reader) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read note: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func readAnswers(path string) (model.AnswerSet, error) {
	var answers model.AnswerSet
	if path == "" {
		return answers, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return answers, fmt.Errorf("read answers: %w", err)
	}
	if err := json.Unmarshal(data, &answers); err != nil {
		return answers, fmt.Errorf("parse answers: %w", err)
	}
	return answers, nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	text, err := readNote(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	answers, err := readAnswers(evalAnswersFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	rt, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	req := model.EvaluationRequest{
		Text:        text,
		RulesetName: evalRuleset,
		Step:        model.StepEvaluate,
		Answers:     answers,
		RewriteUUID: evalRewriteUUID,
	}

	var result any
	if evalAnswersFile != "" {
		req.Step = model.StepRewrite
		result, err = rt.pipeline.Rewrite(ctx, req)
	} else {
		result, err = rt.pipeline.Evaluate(ctx, req)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"result": result})
}
