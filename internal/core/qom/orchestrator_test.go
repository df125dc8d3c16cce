package qom

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/consilium/internal/core/model"
)

type sinkRecorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (s *sinkRecorder) Publish(ev model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *sinkRecorder) byType(t model.EventType) []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// newTestOrchestrator uses a long debounce so tests control flushing.
func newTestOrchestrator(sink Sink) *Orchestrator {
	o := NewOrchestrator(nil, sink, time.Hour, 0)
	o.Submit(model.Event{
		Type: model.EventQOMInitialized,
		InitialNodes: []model.ExpertNode{
			{ID: "gp", Type: model.NodeTypePrimary, Children: []string{"merger"}},
			{ID: "merger", Type: model.NodeTypeMerger},
		},
		InitialLinks: []model.ExpertLink{
			{ID: "l1", Source: "gp", Target: "merger", Type: model.LinkDataFlow, Strength: 1, Active: true},
		},
	})
	o.FlushNow()
	return o
}

func TestDebounceCoalescesExpertTriggers(t *testing.T) {
	sink := &sinkRecorder{}
	o := newTestOrchestrator(sink)

	for _, id := range []string{"cardio", "hema", "endo"} {
		o.Submit(model.Event{
			Type:     model.EventExpertTriggered,
			ParentID: "gp",
			ChildID:  "merger",
			NewNode:  &model.ExpertNode{ID: id, Type: model.NodeTypeSpecialist},
		})
	}

	// Nothing visible before the window flushes.
	nodes, _ := o.Snapshot()
	assert.Len(t, nodes, 2)

	o.FlushNow()
	nodes, links := o.Snapshot()
	assert.Len(t, nodes, 5)

	inactive := 0
	for _, l := range links {
		if !l.Active {
			inactive++
		}
	}
	assert.Equal(t, 1, inactive, "three triggers produced one splice over the direct edge")
	// One coalesced expert_triggered notification, not three.
	assert.Len(t, sink.byType(model.EventExpertTriggered), 1)
}

func TestNodeLifecycleEvents(t *testing.T) {
	sink := &sinkRecorder{}
	o := newTestOrchestrator(sink)

	o.Submit(model.Event{Type: model.EventNodeStarted, NodeID: "gp"})
	progress := 0.5
	o.Submit(model.Event{Type: model.EventNodeProgress, NodeID: "gp", Patch: &model.NodePatch{Progress: &progress}})
	o.Submit(model.Event{
		Type:   model.EventNodeCompleted,
		NodeID: "gp",
		Patch: &model.NodePatch{
			Output:     map[string]interface{}{"specialty": "cardiology"},
			TokenUsage: &model.TokenUsage{Total: 500},
		},
	})
	o.FlushNow()

	nodes, _ := o.Snapshot()
	var gp model.ExpertNode
	for _, n := range nodes {
		if n.ID == "gp" {
			gp = n
		}
	}
	assert.Equal(t, model.NodeCompleted, gp.State)
	assert.Equal(t, 0.5, gp.Progress)
	assert.Equal(t, 500, gp.TokenUsage.Total)
	assert.Equal(t, "cardiology", gp.Output["specialty"])
}

func TestInvalidTransitionRejected(t *testing.T) {
	o := newTestOrchestrator(nil)

	// pending -> completed skips running.
	err := o.UpdateNodeState("gp", model.NodeCompleted, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = o.UpdateNodeState("missing", model.NodeRunning, nil)
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestFailedNodeRetriesOnFallbackModel(t *testing.T) {
	sink := &sinkRecorder{}
	o := NewOrchestrator(nil, sink, time.Hour, 0) // zero delay retries synchronously
	o.Submit(model.Event{
		Type: model.EventQOMInitialized,
		InitialNodes: []model.ExpertNode{
			{ID: "gp", Type: model.NodeTypePrimary, Model: "gpt-4o", FallbackModel: "gpt-4o-mini"},
		},
	})
	o.Submit(model.Event{Type: model.EventNodeStarted, NodeID: "gp"})
	o.Submit(model.Event{
		Type:      model.EventNodeFailed,
		NodeID:    "gp",
		WillRetry: true,
		Patch:     &model.NodePatch{Error: "rate limited"},
	})
	o.FlushNow()

	nodes, _ := o.Snapshot()
	require.Len(t, nodes, 1)
	assert.Equal(t, model.NodeRunning, nodes[0].State, "failed node resumed running")
	assert.Equal(t, "gpt-4o-mini", nodes[0].Model)
	assert.Len(t, sink.byType(model.EventModelSwitched), 1)
}

func TestFailedNodeWithoutRetryStaysFailed(t *testing.T) {
	o := newTestOrchestrator(nil)
	o.Submit(model.Event{Type: model.EventNodeStarted, NodeID: "gp"})
	o.Submit(model.Event{Type: model.EventNodeFailed, NodeID: "gp", Patch: &model.NodePatch{Error: "boom"}})
	o.FlushNow()

	nodes, _ := o.Snapshot()
	for _, n := range nodes {
		if n.ID == "gp" {
			assert.Equal(t, model.NodeFailed, n.State)
			assert.Equal(t, "boom", n.Error)
		}
	}
}

func TestUnknownEventTypeDropped(t *testing.T) {
	sink := &sinkRecorder{}
	o := newTestOrchestrator(sink)

	o.Submit(model.Event{Type: "telemetry_ping"})
	o.FlushNow()

	assert.Empty(t, sink.byType("telemetry_ping"), "unknown events are not forwarded")
	assert.False(t, o.Completed())
}

func TestCompletionFinalizesAndFreezes(t *testing.T) {
	o := newTestOrchestrator(nil)

	o.Submit(model.Event{Type: model.EventNodeStarted, NodeID: "gp"})
	o.Submit(model.Event{
		Type:   model.EventNodeCompleted,
		NodeID: "gp",
		Patch:  &model.NodePatch{Output: map[string]interface{}{"diagnosis": "anemia"}},
	})
	o.Submit(model.Event{Type: model.EventQOMCompleted})
	o.FlushNow()

	require.True(t, o.Completed())
	succeeded, failed, total := o.Counts()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 2, total)

	// The merger never ran: its triggers never fired, so it is skipped.
	nodes, _ := o.Snapshot()
	for _, n := range nodes {
		if n.ID == "merger" {
			assert.Equal(t, model.NodeSkipped, n.State)
		}
	}

	// No further mutation after completion.
	err := o.UpdateNodeState("gp", model.NodeRunning, nil)
	assert.ErrorIs(t, err, ErrRunCompleted)

	consensus, ok := o.Consensus()
	require.True(t, ok)
	assert.Equal(t, 1, consensus.SuccessCount)
}

func TestRelationshipAddedEvent(t *testing.T) {
	o := newTestOrchestrator(nil)
	o.Submit(model.Event{
		Type: model.EventRelationshipAdded,
		Link: &model.ExpertLink{Source: "gp", Target: "merger", Type: model.LinkRefines, Strength: 0.4, Active: true},
	})
	o.FlushNow()

	_, links := o.Snapshot()
	assert.Len(t, links, 2)
}
