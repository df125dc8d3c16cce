package model

import "time"

type NodeState string

const (
	NodePending   NodeState = "pending"
	NodeRunning   NodeState = "running"
	NodeCompleted NodeState = "completed"
	NodeFailed    NodeState = "failed"
	NodeSkipped   NodeState = "skipped"
)

type NodeType string

const (
	NodeTypeInput         NodeType = "input"
	NodeTypeDetector      NodeType = "detector"
	NodeTypePrimary       NodeType = "primary"
	NodeTypeSpecialist    NodeType = "specialist"
	NodeTypeSubSpecialist NodeType = "sub_specialist"
	NodeTypeFunctional    NodeType = "functional"
	NodeTypeMerger        NodeType = "merger"
	NodeTypeSafety        NodeType = "safety"
	NodeTypeConsensus     NodeType = "consensus"
	NodeTypeOutput        NodeType = "output"
)

type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

func (u *TokenUsage) Add(other TokenUsage) {
	u.Prompt += other.Prompt
	u.Completion += other.Completion
	u.Total += other.Total
}

// ExpertNode is one vertex of the orchestration DAG. Mutated only through the
// orchestrator's state-transition API.
type ExpertNode struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Type          NodeType               `json:"type"`
	Category      string                 `json:"category,omitempty"` // medical specialty tag
	Layer         int                    `json:"layer"`
	Parent        string                 `json:"parent,omitempty"`
	Children      []string               `json:"children"`
	State         NodeState              `json:"state"`
	Provider      string                 `json:"provider,omitempty"`
	Model         string                 `json:"model,omitempty"`
	FallbackModel string                 `json:"fallback_model,omitempty"`
	Output        map[string]interface{} `json:"output,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Progress      float64                `json:"progress"`
	StartedAt     *time.Time             `json:"started_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	DurationMs    float64                `json:"duration_ms,omitempty"`
	Cost          float64                `json:"cost,omitempty"`
	TokenUsage    TokenUsage             `json:"token_usage"`
}

// NodePatch carries the optional fields merged by UpdateNodeState. Nil
// pointers leave the current value untouched.
type NodePatch struct {
	Provider    string                 `json:"provider,omitempty"`
	Model       string                 `json:"model,omitempty"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Progress    *float64               `json:"progress,omitempty"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	DurationMs  *float64               `json:"duration_ms,omitempty"`
	Cost        *float64               `json:"cost,omitempty"`
	TokenUsage  *TokenUsage            `json:"token_usage,omitempty"`
}
