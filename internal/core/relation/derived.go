package relation

import (
	"fmt"
	"math"

	"github.com/halcyonlabs/consilium/internal/core/model"
)

// hematocritDeviationLimit is the fraction beyond which measured hematocrit
// contradicts the hemoglobin-derived expectation.
const hematocritDeviationLimit = 0.2

// CalculateDerivedRelationships computes formula-based edges from signals
// that stand in a known arithmetic relation to each other.
func (e *Engine) CalculateDerivedRelationships(signals []model.Signal) []model.SignalRelationship {
	present := indexSignals(signals)

	var out []model.SignalRelationship

	// Cholesterol ratio = total / HDL.
	if total, ok := numeric(present, "total_cholesterol"); ok {
		if hdl, ok := numeric(present, "hdl_cholesterol"); ok && hdl != 0 {
			ratio := total / hdl
			out = append(out, model.SignalRelationship{
				Type:         model.RelDerivesFrom,
				SourceSignal: "total_cholesterol",
				TargetSignal: "cholesterol_ratio",
				Strength:     1.0,
				Formula:      fmt.Sprintf("total_cholesterol / hdl_cholesterol = %.1f", ratio),
				Value:        ratio,
			})
		}
	}

	// Expected hematocrit is roughly hemoglobin * 3. A measurement more than
	// 20% off that expectation contradicts the hemoglobin value.
	if hb, ok := numeric(present, "hemoglobin"); ok && hb != 0 {
		if hct, ok := numeric(present, "hematocrit"); ok {
			expected := hb * 3
			deviation := math.Abs(hct-expected) / expected

			relType := model.RelConfirms
			strength := 1 - deviation
			if deviation > hematocritDeviationLimit {
				relType = model.RelContradicts
				strength = -math.Min(deviation, 1)
			}
			out = append(out, model.SignalRelationship{
				Type:         relType,
				SourceSignal: "hemoglobin",
				TargetSignal: "hematocrit",
				Strength:     strength,
				Formula:      fmt.Sprintf("hemoglobin * 3 = %.1f", expected),
				Value:        expected,
			})
		}
	}

	return out
}

func numeric(present map[string]model.Signal, name string) (float64, bool) {
	s, ok := present[name]
	if !ok {
		return 0, false
	}
	return s.Float()
}
