package model

import "time"

type ItemType string

const (
	ItemDiagnosis      ItemType = "diagnosis"
	ItemTreatment      ItemType = "treatment"
	ItemMedication     ItemType = "medication"
	ItemFollowUp       ItemType = "follow_up"
	ItemQuestion       ItemType = "question"
	ItemRecommendation ItemType = "recommendation"
)

// Origin of an extracted item: stated by the doctor or suggested by an expert pass.
const (
	OriginDoctor     = "doctor"
	OriginSuggestion = "suggestion"
)

// Payload is the tagged union of type-specific clinical item fields.
// Merge applies the incoming-wins-on-conflict rule field by field: a zero
// incoming field leaves the existing value alone.
type Payload interface {
	Kind() ItemType
	// KeyText is the identity text for stable ids and similarity matching.
	KeyText() string
	Merge(incoming Payload) Payload
}

type DiagnosisPayload struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability,omitempty"`
	Basis       string  `json:"basis,omitempty"`
	Code        string  `json:"code,omitempty"`
	Origin      string  `json:"origin,omitempty"`
}

func (p DiagnosisPayload) Kind() ItemType  { return ItemDiagnosis }
func (p DiagnosisPayload) KeyText() string { return p.Name }
func (p DiagnosisPayload) Merge(incoming Payload) Payload {
	in, ok := incoming.(DiagnosisPayload)
	if !ok {
		return p
	}
	out := p
	if in.Name != "" {
		out.Name = in.Name
	}
	if in.Probability != 0 {
		out.Probability = in.Probability
	}
	if in.Basis != "" {
		out.Basis = in.Basis
	}
	if in.Code != "" {
		out.Code = in.Code
	}
	if in.Origin != "" {
		out.Origin = in.Origin
	}
	return out
}

type TreatmentPayload struct {
	Description string `json:"description"`
	Target      string `json:"target,omitempty"`
	Origin      string `json:"origin,omitempty"`
}

func (p TreatmentPayload) Kind() ItemType  { return ItemTreatment }
func (p TreatmentPayload) KeyText() string { return p.Description }
func (p TreatmentPayload) Merge(incoming Payload) Payload {
	in, ok := incoming.(TreatmentPayload)
	if !ok {
		return p
	}
	out := p
	if in.Description != "" {
		out.Description = in.Description
	}
	if in.Target != "" {
		out.Target = in.Target
	}
	if in.Origin != "" {
		out.Origin = in.Origin
	}
	return out
}

type MedicationPayload struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Purpose   string `json:"purpose,omitempty"`
	Origin    string `json:"origin,omitempty"`
}

func (p MedicationPayload) Kind() ItemType { return ItemMedication }

// Medications are keyed by name plus dosage so a dosage change is a new item.
func (p MedicationPayload) KeyText() string { return p.Name + " " + p.Dosage }
func (p MedicationPayload) Merge(incoming Payload) Payload {
	in, ok := incoming.(MedicationPayload)
	if !ok {
		return p
	}
	out := p
	if in.Name != "" {
		out.Name = in.Name
	}
	if in.Dosage != "" {
		out.Dosage = in.Dosage
	}
	if in.Frequency != "" {
		out.Frequency = in.Frequency
	}
	if in.Purpose != "" {
		out.Purpose = in.Purpose
	}
	if in.Origin != "" {
		out.Origin = in.Origin
	}
	return out
}

type FollowUpPayload struct {
	Description string `json:"description"`
	Timeframe   string `json:"timeframe,omitempty"`
	Urgency     string `json:"urgency,omitempty"`
}

func (p FollowUpPayload) Kind() ItemType  { return ItemFollowUp }
func (p FollowUpPayload) KeyText() string { return p.Description }
func (p FollowUpPayload) Merge(incoming Payload) Payload {
	in, ok := incoming.(FollowUpPayload)
	if !ok {
		return p
	}
	out := p
	if in.Description != "" {
		out.Description = in.Description
	}
	if in.Timeframe != "" {
		out.Timeframe = in.Timeframe
	}
	if in.Urgency != "" {
		out.Urgency = in.Urgency
	}
	return out
}

type QuestionPayload struct {
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
	Priority string `json:"priority,omitempty"`
}

func (p QuestionPayload) Kind() ItemType  { return ItemQuestion }
func (p QuestionPayload) KeyText() string { return p.Text }
func (p QuestionPayload) Merge(incoming Payload) Payload {
	in, ok := incoming.(QuestionPayload)
	if !ok {
		return p
	}
	out := p
	if in.Text != "" {
		out.Text = in.Text
	}
	if in.Category != "" {
		out.Category = in.Category
	}
	if in.Priority != "" {
		out.Priority = in.Priority
	}
	return out
}

type RecommendationPayload struct {
	Text    string `json:"text"`
	Urgency string `json:"urgency,omitempty"`
}

func (p RecommendationPayload) Kind() ItemType  { return ItemRecommendation }
func (p RecommendationPayload) KeyText() string { return p.Text }
func (p RecommendationPayload) Merge(incoming Payload) Payload {
	in, ok := incoming.(RecommendationPayload)
	if !ok {
		return p
	}
	out := p
	if in.Text != "" {
		out.Text = in.Text
	}
	if in.Urgency != "" {
		out.Urgency = in.Urgency
	}
	return out
}

// ExtractedItem is one entity from an analysis pass, before merging.
type ExtractedItem struct {
	Payload    Payload `json:"payload"`
	Confidence float64 `json:"confidence"`
}

// MergedItem is the per-session evolving form of a clinical item. Payload is
// merged in place across passes; the item is never removed within a session.
type MergedItem struct {
	ID          string    `json:"id"`
	Type        ItemType  `json:"type"`
	Payload     Payload   `json:"payload"`
	Confidence  float64   `json:"confidence"`
	IsNew       bool      `json:"is_new"`
	IsUpdated   bool      `json:"is_updated"`
	UpdateCount int       `json:"update_count"`
	FirstSeen   time.Time `json:"first_seen"`
	LastUpdated time.Time `json:"last_updated"`
}

type MergeSummary struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Total   int `json:"total"`
}

type MergeResult struct {
	Items           []*MergedItem `json:"items"`
	HasNewItems     bool          `json:"has_new_items"`
	HasUpdatedItems bool          `json:"has_updated_items"`
	Summary         MergeSummary  `json:"summary"`
}
