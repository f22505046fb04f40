package score

import (
	"math"

	"github.com/ppiankov/textio/internal/model"
)

// CriterionScore is one criterion's contribution to a weighted score
type CriterionScore struct {
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"` // Normalized weight when passed, else 0
}

// WeightedScore is the result of weighted scoring
type WeightedScore struct {
	Score          int                       `json:"score"`
	Criteria       map[string]CriterionScore `json:"evaluation"`
	TotalCriteria  int                       `json:"totalCriteria"`
	PassedCriteria int                       `json:"passedCriteria"`
	Error          string                    `json:"error,omitempty"`
}

// Percentage returns passed/len(criteria)*100 rounded to nearest.
// A criterion missing from the evaluation counts as failed; no criteria scores 0.
func Percentage(eval model.Evaluation, criteria []model.Criterion) int {
	if len(criteria) == 0 {
		return 0
	}
	passed := 0
	for _, c := range criteria {
		if eval[c.Name].Passed {
			passed++
		}
	}
	return int(math.Round(float64(passed) / float64(len(criteria)) * 100))
}

// Normalize rescales weights to sum to 100.
// Non-positive weights count as zero; a non-positive sum yields equal weights.
func Normalize(weights []float64) []float64 {
	out := make([]float64, len(weights))
	if len(weights) == 0 {
		return out
	}

	sum := 0.0
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}

	if sum <= 0 {
		equal := 100 / float64(len(weights))
		for i := range out {
			out[i] = equal
		}
		return out
	}

	for i, w := range weights {
		if w > 0 {
			out[i] = w / sum * 100
		}
	}
	return out
}

// Weighted scores eval with normalized criterion weights.
// A criterion contributes its full normalized weight only when it passed.
func Weighted(eval model.Evaluation, criteria []model.Criterion) WeightedScore {
	weights := make([]float64, len(criteria))
	for i, c := range criteria {
		weights[i] = c.Weight
	}
	normalized := Normalize(weights)

	result := WeightedScore{
		Criteria:      make(map[string]CriterionScore, len(criteria)),
		TotalCriteria: len(criteria),
	}

	total := 0.0
	for i, c := range criteria {
		passed := eval[c.Name].Passed
		cs := CriterionScore{Passed: passed}
		if passed {
			cs.Score = round2(normalized[i])
			total += normalized[i]
			result.PassedCriteria++
		}
		result.Criteria[c.Name] = cs
	}

	result.Score = int(math.Round(total))
	if result.Score > 100 {
		result.Score = 100
	}
	return result
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
