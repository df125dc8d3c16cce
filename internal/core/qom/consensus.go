package qom

import (
	"fmt"
	"sort"

	"github.com/halcyonlabs/consilium/internal/core/model"
)

// ConsensusFinding is one reconciled output field across the completed
// experts: the majority value, who voted for it, and how strong the
// agreement was.
type ConsensusFinding struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	Agreement float64     `json:"agreement"` // fraction of reporting experts
	Sources   []string    `json:"sources"`   // node ids backing the value
}

type ConsensusResult struct {
	NodeCount    int                `json:"node_count"`
	SuccessCount int                `json:"success_count"`
	FailureCount int                `json:"failure_count"`
	Findings     []ConsensusFinding `json:"findings"`
	Confidence   float64            `json:"confidence"` // mean agreement
}

// BuildConsensus reconciles the outputs of completed expert nodes into a
// single result. For each output key the majority value wins; ties break
// deterministically on the serialized value so repeated builds agree.
func BuildConsensus(nodes []model.ExpertNode) ConsensusResult {
	res := ConsensusResult{NodeCount: len(nodes)}

	type vote struct {
		value   interface{}
		sources []string
	}
	// key -> serialized value -> vote
	ballots := make(map[string]map[string]*vote)
	reporters := make(map[string]int)

	for _, n := range nodes {
		switch n.State {
		case model.NodeCompleted:
			res.SuccessCount++
		case model.NodeFailed:
			res.FailureCount++
			continue
		default:
			continue
		}
		for key, value := range n.Output {
			if ballots[key] == nil {
				ballots[key] = make(map[string]*vote)
			}
			serialized := fmt.Sprintf("%v", value)
			v, ok := ballots[key][serialized]
			if !ok {
				v = &vote{value: value}
				ballots[key][serialized] = v
			}
			v.sources = append(v.sources, n.ID)
			reporters[key]++
		}
	}

	keys := make([]string, 0, len(ballots))
	for key := range ballots {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	total := 0.0
	for _, key := range keys {
		var winner *vote
		var winnerSerialized string
		for serialized, v := range ballots[key] {
			if winner == nil ||
				len(v.sources) > len(winner.sources) ||
				(len(v.sources) == len(winner.sources) && serialized < winnerSerialized) {
				winner = v
				winnerSerialized = serialized
			}
		}
		agreement := float64(len(winner.sources)) / float64(reporters[key])
		sort.Strings(winner.sources)
		res.Findings = append(res.Findings, ConsensusFinding{
			Key:       key,
			Value:     winner.value,
			Agreement: agreement,
			Sources:   winner.sources,
		})
		total += agreement
	}

	if len(res.Findings) > 0 {
		res.Confidence = total / float64(len(res.Findings))
	}
	return res
}
