package qom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/consilium/internal/core/model"
)

func seedGraph() *Graph {
	g := NewGraph()
	g.AddNode(model.ExpertNode{ID: "gp", Name: "General Practitioner", Type: model.NodeTypePrimary, Children: []string{"merger"}})
	g.AddNode(model.ExpertNode{ID: "merger", Name: "Consensus Merger", Type: model.NodeTypeMerger, Parent: "gp"})
	g.AddLink(model.ExpertLink{ID: "l1", Source: "gp", Target: "merger", Type: model.LinkDataFlow, Strength: 1, Active: true})
	return g
}

func TestInsertBetweenSplicesSiblings(t *testing.T) {
	g := seedGraph()

	inserted := g.InsertBetween([]model.ExpertNode{
		{ID: "cardio", Name: "Cardiology", Type: model.NodeTypeSpecialist},
		{ID: "hema", Name: "Hematology", Type: model.NodeTypeSpecialist},
		{ID: "endo", Name: "Endocrinology", Type: model.NodeTypeSpecialist},
	}, []string{"gp"}, []string{"merger"})
	require.Len(t, inserted, 3)

	parent, ok := g.Node("gp")
	require.True(t, ok)
	assert.Equal(t, []string{"cardio", "hema", "endo"}, parent.Children,
		"parent adopts the new nodes in place of the merger")

	for _, id := range []string{"cardio", "hema", "endo"} {
		n, ok := g.Node(id)
		require.True(t, ok)
		assert.Equal(t, []string{"merger"}, n.Children, "each new node feeds the merger only")
		assert.Equal(t, "gp", n.Parent)
		assert.Equal(t, model.NodePending, n.State)
	}
}

func TestInsertBetweenDeactivatesDirectEdge(t *testing.T) {
	g := seedGraph()
	g.InsertBetween([]model.ExpertNode{
		{ID: "cardio", Type: model.NodeTypeSpecialist},
	}, []string{"gp"}, []string{"merger"})

	// Policy: the superseded edge is kept but deactivated, never deleted.
	var direct *model.ExpertLink
	for _, l := range g.Links() {
		l := l
		if l.Source == "gp" && l.Target == "merger" {
			direct = &l
		}
	}
	require.NotNil(t, direct, "the original edge must still exist")
	assert.False(t, direct.Active)

	active := g.ActiveLinks()
	assert.Len(t, active, 2, "gp->cardio and cardio->merger")
	for _, l := range active {
		assert.True(t, l.Source == "gp" && l.Target == "cardio" ||
			l.Source == "cardio" && l.Target == "merger")
	}
}

func TestInsertBetweenLinkTypes(t *testing.T) {
	g := seedGraph()
	g.InsertBetween([]model.ExpertNode{
		{ID: "cardio", Type: model.NodeTypeSpecialist},
	}, []string{"gp"}, []string{"merger"})

	for _, l := range g.ActiveLinks() {
		switch {
		case l.Source == "gp":
			assert.Equal(t, model.LinkTriggers, l.Type)
		case l.Target == "merger":
			assert.Equal(t, model.LinkContributes, l.Type)
		}
	}
}

func TestAddNodeDefaults(t *testing.T) {
	g := NewGraph()
	n := g.AddNode(model.ExpertNode{Name: "anonymous"})
	assert.NotEmpty(t, n.ID, "missing ids are generated")
	assert.Equal(t, model.NodePending, n.State)
}
