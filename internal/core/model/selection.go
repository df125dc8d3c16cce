package model

// SelectionCriteria describes one analysis request for provider scoring.
type SelectionCriteria struct {
	DocumentType            string `json:"document_type,omitempty"`
	HasImages               bool   `json:"has_images"`
	EstimatedTokens         int    `json:"estimated_tokens"`
	RequiresHighReliability bool   `json:"requires_high_reliability"`
	CostSensitive           bool   `json:"cost_sensitive"`
	PreferredProvider       string `json:"preferred_provider,omitempty"`
	Language                string `json:"language,omitempty"`
}

// SelectionResult is the ranked outcome: one primary plus up to two fallbacks.
// The caller decides whether to retry on a fallback; the selector only ranks.
type SelectionResult struct {
	SelectedProvider  string   `json:"selected_provider"`
	FallbackProviders []string `json:"fallback_providers"`
	Reasoning         []string `json:"reasoning"`
	EstimatedCost     float64  `json:"estimated_cost"`
	Confidence        float64  `json:"confidence"` // [0, 1]
}
