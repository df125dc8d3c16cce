package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/consilium/internal/core/model"
)

func diag(name string, prob float64) model.ExtractedItem {
	return model.ExtractedItem{
		Payload:    model.DiagnosisPayload{Name: name, Probability: prob},
		Confidence: prob,
	}
}

func TestMergeIdempotent(t *testing.T) {
	m := NewMerger()
	batch := []model.ExtractedItem{
		diag("type 2 diabetes", 0.7),
		diag("hypertension", 0.6),
	}

	first := m.MergeItems(batch, model.ItemDiagnosis)
	assert.Equal(t, 2, first.Summary.Total)
	assert.Equal(t, 2, first.Summary.Added)
	assert.True(t, first.HasNewItems)

	second := m.MergeItems(batch, model.ItemDiagnosis)
	assert.Equal(t, 2, second.Summary.Total)
	assert.Equal(t, 0, second.Summary.Added)
	assert.Equal(t, 2, second.Summary.Updated)
	assert.False(t, second.HasNewItems)
	assert.True(t, second.HasUpdatedItems)

	for _, it := range second.Items {
		assert.False(t, it.IsNew)
		assert.True(t, it.IsUpdated)
		assert.Equal(t, 2, it.UpdateCount)
	}
}

func TestMergeEmptyBatchIsNoOp(t *testing.T) {
	m := NewMerger()
	m.MergeItems([]model.ExtractedItem{diag("anemia", 0.5)}, model.ItemDiagnosis)

	res := m.MergeItems(nil, model.ItemDiagnosis)
	assert.Equal(t, 1, res.Summary.Total)
	assert.False(t, res.HasNewItems)
	assert.False(t, res.HasUpdatedItems)
	// The existing item keeps its flags from the pass that created it.
	assert.True(t, res.Items[0].IsNew)
}

func TestMergeSimilarItemsCollapse(t *testing.T) {
	m := NewMerger()
	m.MergeItems([]model.ExtractedItem{diag("iron deficiency anemia", 0.5)}, model.ItemDiagnosis)
	res := m.MergeItems([]model.ExtractedItem{diag("iron deficiency anaemia", 0.8)}, model.ItemDiagnosis)

	require.Equal(t, 1, res.Summary.Total)
	it := res.Items[0]
	assert.True(t, it.IsUpdated)
	assert.Equal(t, 2, it.UpdateCount)
	// Incoming wins on conflicting fields.
	assert.Equal(t, "iron deficiency anaemia", it.Payload.(model.DiagnosisPayload).Name)
	assert.InDelta(t, 0.8, it.Confidence, 1e-9)
}

func TestMergeIncomingWinsFieldByField(t *testing.T) {
	m := NewMerger()
	m.MergeItems([]model.ExtractedItem{{
		Payload: model.MedicationPayload{Name: "metformin", Dosage: "500mg", Purpose: "glycemic control"},
	}}, model.ItemMedication)

	res := m.MergeItems([]model.ExtractedItem{{
		Payload: model.MedicationPayload{Name: "metformin", Dosage: "500mg", Frequency: "twice daily"},
	}}, model.ItemMedication)

	require.Equal(t, 1, res.Summary.Total)
	p := res.Items[0].Payload.(model.MedicationPayload)
	// New field set by the incoming item, old field kept where incoming is empty.
	assert.Equal(t, "twice daily", p.Frequency)
	assert.Equal(t, "glycemic control", p.Purpose)
}

func TestMergePreservesFirstSeenOrder(t *testing.T) {
	m := NewMerger()
	m.MergeItems([]model.ExtractedItem{
		diag("asthma", 0.5),
		diag("bronchitis", 0.5),
		diag("pneumonia", 0.5),
	}, model.ItemDiagnosis)

	// Updating the middle item must not move it.
	m.MergeItems([]model.ExtractedItem{diag("bronchitis", 0.9)}, model.ItemDiagnosis)

	names := []string{}
	for _, p := range m.ItemsData(model.ItemDiagnosis) {
		names = append(names, p.(model.DiagnosisPayload).Name)
	}
	assert.Equal(t, []string{"asthma", "bronchitis", "pneumonia"}, names)
}

func TestMergeCanonicalKeyAnchorsCluster(t *testing.T) {
	// A chain of near-duplicates must all merge into the first-seen item,
	// not drift cluster to cluster as the merged key evolves.
	m := NewMerger()
	m.MergeItems([]model.ExtractedItem{diag("chronic kidney disease", 0.5)}, model.ItemDiagnosis)
	m.MergeItems([]model.ExtractedItem{diag("chronic kidney diseases", 0.6)}, model.ItemDiagnosis)
	res := m.MergeItems([]model.ExtractedItem{diag("chronic kidney diseas", 0.7)}, model.ItemDiagnosis)

	assert.Equal(t, 1, res.Summary.Total)
	assert.Equal(t, 3, res.Items[0].UpdateCount)
}

func TestMergeTypeBucketsIndependent(t *testing.T) {
	m := NewMerger()
	m.MergeItems([]model.ExtractedItem{diag("anemia", 0.5)}, model.ItemDiagnosis)
	m.MergeItems([]model.ExtractedItem{{
		Payload: model.RecommendationPayload{Text: "order iron panel"},
	}}, model.ItemRecommendation)

	assert.Len(t, m.Items(model.ItemDiagnosis), 1)
	assert.Len(t, m.Items(model.ItemRecommendation), 1)

	m.Clear()
	assert.Empty(t, m.Items(model.ItemDiagnosis))
}
