package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/consilium/internal/config"
	"github.com/halcyonlabs/consilium/internal/core/model"
)

func testProfiles() map[string]config.ProviderProfile {
	return map[string]config.ProviderProfile{
		"openai": {
			Reliability:    0.95,
			CostPer1K:      0.03,
			MaxTokens:      128000,
			SupportsImages: true,
			Strengths:      []string{StrengthImageAnalysis, StrengthMedicalTerminology},
		},
		"anthropic": {
			Reliability:    0.94,
			CostPer1K:      0.025,
			MaxTokens:      200000,
			SupportsImages: true,
			Strengths:      []string{StrengthMedicalTerminology},
		},
		"gemini": {
			Reliability:    0.90,
			CostPer1K:      0.01,
			MaxTokens:      100000,
			SupportsImages: true,
		},
		"local": {
			Reliability:    0.75,
			CostPer1K:      0,
			MaxTokens:      8000,
			SupportsImages: false,
		},
	}
}

func TestSelectReturnsPrimaryAndTwoFallbacks(t *testing.T) {
	s := NewSelector(testProfiles(), nil)
	res, err := s.SelectOptimal(model.SelectionCriteria{EstimatedTokens: 4000})
	require.NoError(t, err)

	assert.NotEmpty(t, res.SelectedProvider)
	assert.Len(t, res.FallbackProviders, 2)
	assert.NotContains(t, res.FallbackProviders, res.SelectedProvider)
	assert.GreaterOrEqual(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 1.0)
	assert.Len(t, res.Reasoning, 4)
}

func TestReliabilityMonotonicity(t *testing.T) {
	criteria := model.SelectionCriteria{
		EstimatedTokens:         4000,
		RequiresHighReliability: true,
		CostSensitive:           true,
		HasImages:               true,
	}

	base := testProfiles()
	s := NewSelector(base, nil)
	low, _ := s.score("anthropic", base["anthropic"], criteria)

	bumped := testProfiles()
	p := bumped["anthropic"]
	p.Reliability = 0.99
	bumped["anthropic"] = p
	s2 := NewSelector(bumped, nil)
	high, _ := s2.score("anthropic", bumped["anthropic"], criteria)

	assert.GreaterOrEqual(t, high, low, "raising reliability must never lower the score")
}

func TestImagePenaltyForUnsupportedProvider(t *testing.T) {
	s := NewSelector(testProfiles(), nil)

	without, _ := s.score("local", testProfiles()["local"], model.SelectionCriteria{EstimatedTokens: 1000})
	with, _ := s.score("local", testProfiles()["local"], model.SelectionCriteria{EstimatedTokens: 1000, HasImages: true})
	assert.Less(t, with, without)
}

func TestTokenBudgetPenalties(t *testing.T) {
	s := NewSelector(testProfiles(), nil)
	p := testProfiles()["local"] // max 8000

	inBudget, _ := s.score("local", p, model.SelectionCriteria{EstimatedTokens: 1000})
	nearBudget, _ := s.score("local", p, model.SelectionCriteria{EstimatedTokens: 7000})
	overBudget, _ := s.score("local", p, model.SelectionCriteria{EstimatedTokens: 9000})

	assert.Less(t, nearBudget, inBudget)
	assert.Less(t, overBudget, nearBudget)
}

func TestDocumentTypePreferenceBonusDecaysByRank(t *testing.T) {
	preferred := map[string][]string{
		"lab_report": {"gemini", "openai", "anthropic"},
	}
	s := NewSelector(testProfiles(), preferred)
	criteria := model.SelectionCriteria{DocumentType: "lab_report", EstimatedTokens: 1000}

	profiles := testProfiles()
	first, _ := s.score("gemini", profiles["gemini"], criteria)
	unranked, _ := s.score("gemini", profiles["gemini"], model.SelectionCriteria{EstimatedTokens: 1000})
	assert.InDelta(t, 20, first-unranked, 1e-9, "rank 0 bonus is 20")

	second, _ := s.score("openai", profiles["openai"], criteria)
	secondUnranked, _ := s.score("openai", profiles["openai"], model.SelectionCriteria{EstimatedTokens: 1000})
	assert.InDelta(t, 15, second-secondUnranked, 1e-9, "rank 1 bonus is 15")
}

func TestPreferredProviderShortCircuit(t *testing.T) {
	s := NewSelector(testProfiles(), nil)
	res, err := s.SelectOptimal(model.SelectionCriteria{
		PreferredProvider: "gemini",
		EstimatedTokens:   2000,
	})
	require.NoError(t, err)

	assert.Equal(t, "gemini", res.SelectedProvider)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
	// Fallbacks ranked by reliability: openai (0.95) then anthropic (0.94).
	assert.Equal(t, []string{"openai", "anthropic"}, res.FallbackProviders)
}

func TestPreferredProviderFallbacksFilteredByCompatibility(t *testing.T) {
	s := NewSelector(testProfiles(), nil)
	res, err := s.SelectOptimal(model.SelectionCriteria{
		PreferredProvider: "openai",
		EstimatedTokens:   50000, // over local's 8000 budget
		HasImages:         true,  // local has no image support either
	})
	require.NoError(t, err)
	assert.NotContains(t, res.FallbackProviders, "local")
}

func TestUnknownPreferredProviderFallsBackToScoring(t *testing.T) {
	s := NewSelector(testProfiles(), nil)
	res, err := s.SelectOptimal(model.SelectionCriteria{
		PreferredProvider: "does-not-exist",
		EstimatedTokens:   1000,
	})
	require.NoError(t, err)
	assert.NotEqual(t, "does-not-exist", res.SelectedProvider)
}

func TestEstimatedCost(t *testing.T) {
	s := NewSelector(testProfiles(), nil)
	res, err := s.SelectOptimal(model.SelectionCriteria{
		PreferredProvider: "openai",
		EstimatedTokens:   2000,
	})
	require.NoError(t, err)
	assert.InDelta(t, 2.0*0.03, res.EstimatedCost, 1e-9)
}

func TestEmptyRegistry(t *testing.T) {
	s := NewSelector(nil, nil)
	_, err := s.SelectOptimal(model.SelectionCriteria{})
	assert.ErrorIs(t, err, ErrNoProviders)
}
