package model

type RelationType string

const (
	RelCorrelatesWith RelationType = "correlates_with"
	RelDerivesFrom    RelationType = "derives_from"
	RelContradicts    RelationType = "contradicts"
	RelConfirms       RelationType = "confirms"
)

// Signal is a single lab value or vital sign. Immutable once ingested;
// relationships are derived over a set of signals, never stored on one.
type Signal struct {
	Name  string      `json:"name"` // canonical lowercase key
	Value interface{} `json:"value"`
	Unit  string      `json:"unit,omitempty"`
}

// Float returns the numeric value, if the signal carries one. Non-numeric
// signals are skipped by every rule, never an error.
func (s Signal) Float() (float64, bool) {
	switch v := s.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

type SignalRelationship struct {
	Type         RelationType `json:"type"`
	SourceSignal string       `json:"source_signal"`
	TargetSignal string       `json:"target_signal"`
	Strength     float64      `json:"strength"` // [-1, 1]
	Formula      string       `json:"formula,omitempty"`
	Value        float64      `json:"value,omitempty"`
}

// PatientContext supplies demographics for sex/age-adjusted thresholds.
// Zero fields fall back to population defaults.
type PatientContext struct {
	Sex string `json:"sex,omitempty"` // "male" | "female"
	Age int    `json:"age,omitempty"`
}
