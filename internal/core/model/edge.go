package model

type LinkType string

const (
	LinkDataFlow    LinkType = "data_flow"
	LinkTriggers    LinkType = "triggers"
	LinkRefines     LinkType = "refines"
	LinkContributes LinkType = "contributes"
	LinkMerges      LinkType = "merges"
)

// ExpertLink is a directed edge of the orchestration DAG. Links superseded by
// a dynamic splice are deactivated, never deleted, so the run history stays
// reconstructable.
type ExpertLink struct {
	ID       string   `json:"id"`
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Type     LinkType `json:"type"`
	Strength float64  `json:"strength"` // [0, 1]
	Active   bool     `json:"active"`
}
