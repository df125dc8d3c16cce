package provider

import (
	"fmt"
	"sort"

	"github.com/halcyonlabs/consilium/internal/config"
	"github.com/halcyonlabs/consilium/internal/core/model"
)

// Strength tags recognized by the scorer.
const (
	StrengthImageAnalysis      = "image_analysis"
	StrengthMedicalTerminology = "medical_terminology"
)

const highReliabilityBar = 0.93

var ErrNoProviders = fmt.Errorf("no providers registered")

// Selector scores and ranks AI backends against a request's criteria. The
// registry is injected at construction; there is no global provider table.
type Selector struct {
	profiles  map[string]config.ProviderProfile
	preferred map[string][]string // document type -> provider names, best first
}

func NewSelector(profiles map[string]config.ProviderProfile, preferred map[string][]string) *Selector {
	if profiles == nil {
		profiles = map[string]config.ProviderProfile{}
	}
	return &Selector{profiles: profiles, preferred: preferred}
}

func (s *Selector) Names() []string {
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Selector) Profile(name string) (config.ProviderProfile, bool) {
	p, ok := s.profiles[name]
	return p, ok
}

// SelectOptimal returns the best-scoring provider plus up to two ranked
// fallbacks. The caller decides whether a fallback is actually used.
func (s *Selector) SelectOptimal(criteria model.SelectionCriteria) (model.SelectionResult, error) {
	if len(s.profiles) == 0 {
		return model.SelectionResult{}, ErrNoProviders
	}

	if criteria.PreferredProvider != "" {
		if p, ok := s.profiles[criteria.PreferredProvider]; ok {
			return s.selectPreferred(criteria, criteria.PreferredProvider, p), nil
		}
	}

	type scored struct {
		name  string
		score float64
	}

	var reasoning []string
	ranked := make([]scored, 0, len(s.profiles))
	for _, name := range s.Names() {
		score, why := s.score(name, s.profiles[name], criteria)
		ranked = append(ranked, scored{name: name, score: score})
		reasoning = append(reasoning, fmt.Sprintf("%s: %.1f (%s)", name, score, why))
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].name < ranked[j].name
	})

	top := ranked[0]
	var fallbacks []string
	for _, r := range ranked[1:] {
		if len(fallbacks) == 2 {
			break
		}
		fallbacks = append(fallbacks, r.name)
	}

	// Confidence favors decisive separation between #1 and #2 over raw
	// score magnitude.
	gap := top.score
	if len(ranked) > 1 {
		gap = top.score - ranked[1].score
	}
	confidence := clamp01(0.6*clamp01(gap/20) + 0.4*clamp01(top.score/80))

	return model.SelectionResult{
		SelectedProvider:  top.name,
		FallbackProviders: fallbacks,
		Reasoning:         reasoning,
		EstimatedCost:     estimatedCost(s.profiles[top.name], criteria),
		Confidence:        confidence,
	}, nil
}

func (s *Selector) selectPreferred(criteria model.SelectionCriteria, name string, p config.ProviderProfile) model.SelectionResult {
	// Fallbacks: every other compatible provider by reliability, top two.
	type candidate struct {
		name        string
		reliability float64
	}
	var candidates []candidate
	for _, other := range s.Names() {
		if other == name {
			continue
		}
		if !s.compatible(s.profiles[other], criteria) {
			continue
		}
		candidates = append(candidates, candidate{other, s.profiles[other].Reliability})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].reliability != candidates[j].reliability {
			return candidates[i].reliability > candidates[j].reliability
		}
		return candidates[i].name < candidates[j].name
	})
	var fallbacks []string
	for _, c := range candidates {
		if len(fallbacks) == 2 {
			break
		}
		fallbacks = append(fallbacks, c.name)
	}

	return model.SelectionResult{
		SelectedProvider:  name,
		FallbackProviders: fallbacks,
		Reasoning:         []string{fmt.Sprintf("preferred provider %s requested", name)},
		EstimatedCost:     estimatedCost(p, criteria),
		Confidence:        0.9,
	}
}

func (s *Selector) compatible(p config.ProviderProfile, criteria model.SelectionCriteria) bool {
	if criteria.HasImages && !p.SupportsImages && !hasStrength(p, StrengthImageAnalysis) {
		return false
	}
	if criteria.EstimatedTokens > 0 && p.MaxTokens > 0 && criteria.EstimatedTokens > p.MaxTokens {
		return false
	}
	if criteria.Language != "" && len(p.Languages) > 0 && !contains(p.Languages, criteria.Language) {
		return false
	}
	return true
}

func (s *Selector) score(name string, p config.ProviderProfile, criteria model.SelectionCriteria) (float64, string) {
	score := p.Reliability * 40
	why := fmt.Sprintf("reliability %.2f", p.Reliability)

	if criteria.DocumentType != "" {
		for rank, preferred := range s.preferred[criteria.DocumentType] {
			if preferred != name {
				continue
			}
			bonus := float64(20 - 5*rank)
			if bonus < 5 {
				bonus = 5
			}
			score += bonus
			why += fmt.Sprintf(", preferred for %s", criteria.DocumentType)
			break
		}
	}

	if criteria.HasImages {
		switch {
		case hasStrength(p, StrengthImageAnalysis):
			score += 15
			why += ", image analysis strength"
		case p.SupportsImages:
			score += 5
		default:
			score -= 20
			why += ", no image support"
		}
	}

	if p.MaxTokens > 0 && criteria.EstimatedTokens > 0 {
		switch {
		case criteria.EstimatedTokens > p.MaxTokens:
			score -= 30
			why += ", over token budget"
		case float64(criteria.EstimatedTokens) >= 0.8*float64(p.MaxTokens):
			score -= 10
			why += ", near token budget"
		}
	}

	if criteria.CostSensitive {
		score -= p.CostPer1K * 10
	}

	if criteria.RequiresHighReliability {
		if p.Reliability >= highReliabilityBar {
			score += 10
		} else {
			score -= 15
		}
	}

	if hasStrength(p, StrengthMedicalTerminology) {
		score += 8
	}

	if score < 0 {
		score = 0
	}
	return score, why
}

func estimatedCost(p config.ProviderProfile, criteria model.SelectionCriteria) float64 {
	return float64(criteria.EstimatedTokens) / 1000 * p.CostPer1K
}

func hasStrength(p config.ProviderProfile, strength string) bool {
	return contains(p.Strengths, strength)
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
