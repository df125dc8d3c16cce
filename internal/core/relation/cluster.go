package relation

import (
	"math"
	"sort"
	"strings"

	"github.com/halcyonlabs/consilium/internal/core/model"
)

// ClusterDetector groups related signals into panels (lipid panel, renal
// panel and so on) by running label propagation over the relationship edges.
// Singleton clusters are dropped; a lone signal is not a panel.
type ClusterDetector struct {
	MaxIterations int
}

func NewClusterDetector() *ClusterDetector {
	return &ClusterDetector{MaxIterations: 20}
}

func (d *ClusterDetector) Detect(signals []model.Signal, rels []model.SignalRelationship) [][]string {
	if len(signals) == 0 {
		return nil
	}

	// Adjacency weighted by |strength|; the sign of a correlation does not
	// change whether two signals belong to the same panel. Names are
	// lowercased so they line up with the canonical names relationship
	// edges carry, whatever casing the signal arrived with.
	adj := make(map[string]map[string]float64)
	names := make([]string, 0, len(signals))
	for _, s := range signals {
		name := strings.ToLower(s.Name)
		if _, ok := adj[name]; ok {
			continue
		}
		adj[name] = make(map[string]float64)
		names = append(names, name)
	}
	sort.Strings(names)

	for _, r := range rels {
		src := strings.ToLower(r.SourceSignal)
		tgt := strings.ToLower(r.TargetSignal)
		if _, ok := adj[src]; !ok {
			continue
		}
		if _, ok := adj[tgt]; !ok {
			continue
		}
		w := math.Abs(r.Strength)
		adj[src][tgt] += w
		adj[tgt][src] += w
	}

	// Every signal starts in its own cluster.
	labels := make(map[string]string, len(names))
	for _, n := range names {
		labels[n] = n
	}

	for iter := 0; iter < d.MaxIterations; iter++ {
		changed := 0
		for _, n := range names {
			neighbors := adj[n]
			if len(neighbors) == 0 {
				continue
			}

			weight := make(map[string]float64)
			maxWeight := 0.0
			for v, w := range neighbors {
				label := labels[v]
				weight[label] += w
				if weight[label] > maxWeight {
					maxWeight = weight[label]
				}
			}

			var candidates []string
			for label, w := range weight {
				if w == maxWeight {
					candidates = append(candidates, label)
				}
			}
			// Deterministic tie-break: lexicographically largest label wins.
			sort.Strings(candidates)
			best := candidates[len(candidates)-1]

			if labels[n] != best {
				labels[n] = best
				changed++
			}
		}
		if changed == 0 {
			break
		}
	}

	grouped := make(map[string][]string)
	for _, n := range names {
		grouped[labels[n]] = append(grouped[labels[n]], n)
	}

	var clusters [][]string
	for _, members := range grouped {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		clusters = append(clusters, members)
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i][0] < clusters[j][0] })
	return clusters
}
