package qom

import (
	"github.com/google/uuid"

	"github.com/halcyonlabs/consilium/internal/core/model"
)

// Graph is the expert DAG for one run. Not safe for concurrent use on its
// own; the orchestrator serializes all access.
type Graph struct {
	nodes map[string]*model.ExpertNode
	order []string
	links []*model.ExpertLink
}

func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*model.ExpertNode)}
}

func (g *Graph) AddNode(n model.ExpertNode) *model.ExpertNode {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.State == "" {
		n.State = model.NodePending
	}
	node := n
	g.nodes[node.ID] = &node
	g.order = append(g.order, node.ID)
	return &node
}

func (g *Graph) Node(id string) (*model.ExpertNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns copies in insertion order.
func (g *Graph) Nodes() []model.ExpertNode {
	out := make([]model.ExpertNode, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.nodes[id])
	}
	return out
}

func (g *Graph) AddLink(l model.ExpertLink) *model.ExpertLink {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	link := l
	g.links = append(g.links, &link)
	return &link
}

// Links returns copies of every edge, active or not.
func (g *Graph) Links() []model.ExpertLink {
	out := make([]model.ExpertLink, 0, len(g.links))
	for _, l := range g.links {
		out = append(out, *l)
	}
	return out
}

// ActiveLinks filters out edges deactivated by a splice.
func (g *Graph) ActiveLinks() []model.ExpertLink {
	var out []model.ExpertLink
	for _, l := range g.links {
		if l.Active {
			out = append(out, *l)
		}
	}
	return out
}

// InsertBetween splices new nodes between the given parents and children:
// every direct parent->child edge is marked inactive (kept for run history,
// never deleted), the parents adopt the new nodes in place of the children,
// and each new node feeds every child. This is how specialist expansion
// happens mid-run.
func (g *Graph) InsertBetween(newNodes []model.ExpertNode, parents, children []string) []*model.ExpertNode {
	childSet := make(map[string]bool, len(children))
	for _, c := range children {
		childSet[c] = true
	}

	for _, l := range g.links {
		if l.Active && contains(parents, l.Source) && childSet[l.Target] {
			l.Active = false
		}
	}

	inserted := make([]*model.ExpertNode, 0, len(newNodes))
	for _, n := range newNodes {
		if len(parents) > 0 && n.Parent == "" {
			n.Parent = parents[0]
		}
		if len(n.Children) == 0 {
			n.Children = append([]string(nil), children...)
		}
		inserted = append(inserted, g.AddNode(n))
	}

	for _, pid := range parents {
		parent, ok := g.nodes[pid]
		if !ok {
			continue
		}
		kept := parent.Children[:0]
		for _, c := range parent.Children {
			if !childSet[c] {
				kept = append(kept, c)
			}
		}
		parent.Children = kept
		for _, n := range inserted {
			parent.Children = append(parent.Children, n.ID)
			g.AddLink(model.ExpertLink{
				Source:   pid,
				Target:   n.ID,
				Type:     model.LinkTriggers,
				Strength: 1,
				Active:   true,
			})
		}
	}

	for _, n := range inserted {
		for _, cid := range children {
			g.AddLink(model.ExpertLink{
				Source:   n.ID,
				Target:   cid,
				Type:     model.LinkContributes,
				Strength: 1,
				Active:   true,
			})
		}
	}

	return inserted
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
