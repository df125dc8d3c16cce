package relation

import (
	"strings"

	"github.com/halcyonlabs/consilium/internal/core/model"
)

// rule relates two canonical signal names. The optional predicate gates the
// rule on current values and patient context.
type rule struct {
	source    string
	target    string
	relType   model.RelationType
	strength  float64
	predicate func(source, target float64, pc model.PatientContext) bool
}

var staticRules = []rule{
	{source: "glucose", target: "hba1c", relType: model.RelCorrelatesWith, strength: 0.85},
	{source: "creatinine", target: "bun", relType: model.RelCorrelatesWith, strength: 0.7},
	{source: "alt", target: "ast", relType: model.RelCorrelatesWith, strength: 0.75},
	{source: "total_cholesterol", target: "ldl_cholesterol", relType: model.RelCorrelatesWith, strength: 0.8},
	{source: "triglycerides", target: "hdl_cholesterol", relType: model.RelCorrelatesWith, strength: -0.5},
	{source: "systolic_bp", target: "diastolic_bp", relType: model.RelCorrelatesWith, strength: 0.8},
	// Elevated TSH with suppressed free T4 is the classic primary
	// hypothyroidism signature, so the pair confirms rather than correlates.
	{
		source: "tsh", target: "free_t4", relType: model.RelConfirms, strength: 0.8,
		predicate: func(src, tgt float64, _ model.PatientContext) bool {
			return src > 4.0 && tgt < 0.8
		},
	},
}

// missingSignalHints suggests the natural companion of a present signal.
var missingSignalHints = map[string]string{
	"total_cholesterol": "hdl_cholesterol",
	"glucose":           "hba1c",
	"alt":               "ast",
	"creatinine":        "bun",
	"hemoglobin":        "hematocrit",
}

// Engine derives relationships, pattern flags and completion hints from a
// flat set of signals. Stateless; safe to share across sessions.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// AnalyzeRelationships evaluates the static rule table over the present
// signals, then appends formula-derived edges. Non-numeric signal values are
// skipped; they never fail the analysis.
func (e *Engine) AnalyzeRelationships(signals []model.Signal, pc model.PatientContext) []model.SignalRelationship {
	present := indexSignals(signals)

	var out []model.SignalRelationship
	for _, r := range staticRules {
		src, srcOK := present[r.source]
		tgt, tgtOK := present[r.target]
		if !srcOK || !tgtOK {
			continue
		}
		if r.predicate != nil {
			srcVal, ok1 := src.Float()
			tgtVal, ok2 := tgt.Float()
			if !ok1 || !ok2 || !r.predicate(srcVal, tgtVal, pc) {
				continue
			}
		}
		out = append(out, model.SignalRelationship{
			Type:         r.relType,
			SourceSignal: r.source,
			TargetSignal: r.target,
			Strength:     r.strength,
		})
	}

	out = append(out, e.CalculateDerivedRelationships(signals)...)
	return out
}

// SuggestMissingSignals returns canonical names of companion signals worth
// ordering, given what is already present.
func (e *Engine) SuggestMissingSignals(signals []model.Signal) []string {
	present := indexSignals(signals)

	var suggestions []string
	for have, want := range missingSignalHints {
		if _, ok := present[have]; !ok {
			continue
		}
		if _, ok := present[want]; ok {
			continue
		}
		suggestions = append(suggestions, want)
	}
	return suggestions
}

func indexSignals(signals []model.Signal) map[string]model.Signal {
	present := make(map[string]model.Signal, len(signals))
	for _, s := range signals {
		name := strings.ToLower(strings.TrimSpace(s.Name))
		if name == "" {
			continue
		}
		present[name] = s
	}
	return present
}
