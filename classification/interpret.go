package classification

import (
	"fmt"
	"maps"
)

// ConfidenceMap maps each label to its raw model score. Scores are not
// renormalized, so they only sum to 1 when the model emits probabilities.
type ConfidenceMap map[string]float64

// Prediction is the interpreted result of one inference.
type Prediction struct {
	Label       string        `json:"prediction"`
	Index       int           `json:"-"`
	Explanation string        `json:"explanation"`
	Confidence  ConfidenceMap `json:"confidence_scores"`
}

func (p Prediction) clone() Prediction {
	p.Confidence = maps.Clone(p.Confidence)
	return p
}

// Argmax returns the index of the largest score, the first one on ties, or -1
// for an empty slice. NaN ranks above every number, so the first NaN wins.
func Argmax(scores []float32) int {
	if len(scores) == 0 {
		return -1
	}
	best := 0
	for i := 0; i < len(scores); i++ {
		if isNaN(scores[i]) {
			return i
		}
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best
}

func isNaN(f float32) bool {
	return f != f
}

// Interpret maps a [1, num_classes] score row to a labelled prediction.
func (v Variant) Interpret(scores []float32) (Prediction, error) {
	if len(scores) != len(v.Labels) || len(scores) == 0 {
		return Prediction{}, stageErr(StageInterpret,
			fmt.Errorf("%w: got %d scores for %d labels", ErrLabelMismatch, len(scores), len(v.Labels)))
	}

	idx := Argmax(scores)
	label := v.Labels[idx]

	confidence := make(ConfidenceMap, len(v.Labels))
	for i, name := range v.Labels {
		confidence[name] = float64(scores[i])
	}

	return Prediction{
		Label:       label,
		Index:       idx,
		Explanation: v.Explain(label),
		Confidence:  confidence,
	}, nil
}
