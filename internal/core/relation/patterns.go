package relation

import "github.com/halcyonlabs/consilium/internal/core/model"

// Fixed population thresholds. No learning; these mirror standard reference
// ranges and are adjusted only by explicit patient context (sex for anemia).
const (
	glucoseDiabetesLimit    = 126.0
	hba1cDiabetesLimit      = 6.5
	hemoglobinAnemiaMale    = 13.5
	hemoglobinAnemiaFemale  = 12.0
	creatinineKidneyLimit   = 1.3
	bunKidneyLimit          = 20.0
	liverEnzymeLimit        = 40.0
	tshHyperthyroidLimit    = 0.4
	tshHypothyroidLimit     = 4.0
)

// Pattern flags emitted by DetectClinicalPatterns.
const (
	PatternDiabetes     = "possible_diabetes"
	PatternAnemia       = "possible_anemia"
	PatternKidney       = "possible_kidney_dysfunction"
	PatternLiver        = "possible_liver_dysfunction"
	PatternHyperthyroid = "possible_hyperthyroidism"
	PatternHypothyroid  = "possible_hypothyroidism"
)

// DetectClinicalPatterns runs threshold heuristics per signal. Missing context
// fields fall back to population defaults; non-numeric values are skipped.
func (e *Engine) DetectClinicalPatterns(signals []model.Signal, pc model.PatientContext) []string {
	present := indexSignals(signals)

	var patterns []string
	add := func(p string) {
		for _, existing := range patterns {
			if existing == p {
				return
			}
		}
		patterns = append(patterns, p)
	}

	if glucose, ok := numeric(present, "glucose"); ok && glucose > glucoseDiabetesLimit {
		add(PatternDiabetes)
	}
	if hba1c, ok := numeric(present, "hba1c"); ok && hba1c > hba1cDiabetesLimit {
		add(PatternDiabetes)
	}

	if hb, ok := numeric(present, "hemoglobin"); ok {
		limit := hemoglobinAnemiaMale
		if pc.Sex == "female" {
			limit = hemoglobinAnemiaFemale
		}
		if hb < limit {
			add(PatternAnemia)
		}
	}

	if creatinine, ok := numeric(present, "creatinine"); ok && creatinine > creatinineKidneyLimit {
		add(PatternKidney)
	}
	if bun, ok := numeric(present, "bun"); ok && bun > bunKidneyLimit {
		add(PatternKidney)
	}

	if alt, ok := numeric(present, "alt"); ok && alt > liverEnzymeLimit {
		add(PatternLiver)
	}
	if ast, ok := numeric(present, "ast"); ok && ast > liverEnzymeLimit {
		add(PatternLiver)
	}

	if tsh, ok := numeric(present, "tsh"); ok {
		if tsh < tshHyperthyroidLimit {
			add(PatternHyperthyroid)
		} else if tsh > tshHypothyroidLimit {
			add(PatternHypothyroid)
		}
	}

	return patterns
}
