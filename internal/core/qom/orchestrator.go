package qom

import (
	"fmt"
	"sync"
	"time"

	"github.com/halcyonlabs/consilium/internal/core/model"
	"github.com/halcyonlabs/consilium/internal/logger"
)

var (
	ErrUnknownNode       = fmt.Errorf("unknown expert node")
	ErrRunCompleted      = fmt.Errorf("run already completed")
	ErrInvalidTransition = fmt.Errorf("invalid node state transition")
)

// Sink receives every applied event in order, for SSE delivery and the
// workflow recorder.
type Sink interface {
	Publish(ev model.Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev model.Event)

func (f SinkFunc) Publish(ev model.Event) { f(ev) }

// Orchestrator owns one run's expert DAG and applies lifecycle events to it.
// Events are queued and flushed after a short debounce window so that a burst
// of expert_triggered events sharing one parent becomes a single batched
// graph mutation. Callers must not assume a mutation is visible until the
// window flushes; FlushNow forces a synchronous drain.
type Orchestrator struct {
	mu sync.Mutex

	log        *logger.Logger
	sink       Sink
	debounce   time.Duration
	retryDelay time.Duration

	graph *Graph
	queue []model.Event
	timer *time.Timer

	completed    bool
	successCount int
	failureCount int
	consensus    *ConsensusResult
}

func NewOrchestrator(log *logger.Logger, sink Sink, debounce, retryDelay time.Duration) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		log:        log.With("component", "qom"),
		sink:       sink,
		debounce:   debounce,
		retryDelay: retryDelay,
		graph:      NewGraph(),
	}
}

// Submit queues one event. The queue drains after the debounce window, or on
// FlushNow.
func (o *Orchestrator) Submit(ev model.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	o.queue = append(o.queue, ev)

	if o.debounce <= 0 {
		o.flushLocked()
		return
	}
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(o.debounce, o.FlushNow)
}

// FlushNow drains the queue synchronously.
func (o *Orchestrator) FlushNow() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushLocked()
}

func (o *Orchestrator) flushLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if len(o.queue) == 0 {
		return
	}
	events := o.queue
	o.queue = nil

	// Coalesce expert_triggered events by parent/child pair into one splice
	// each; everything else applies in arrival order.
	type spliceKey struct{ parent, child string }
	splices := make(map[spliceKey][]model.ExpertNode)
	var spliceOrder []spliceKey

	for _, ev := range events {
		if ev.Type == model.EventExpertTriggered {
			if ev.NewNode == nil {
				o.log.Warn("expert_triggered event without node payload dropped")
				continue
			}
			key := spliceKey{ev.ParentID, ev.ChildID}
			if _, seen := splices[key]; !seen {
				spliceOrder = append(spliceOrder, key)
			}
			splices[key] = append(splices[key], *ev.NewNode)
			continue
		}
		o.applyLocked(ev)
	}

	for _, key := range spliceOrder {
		nodes := splices[key]
		if o.completed {
			o.log.Warn("expert_triggered after run completion dropped", "parent", key.parent)
			continue
		}
		o.graph.InsertBetween(nodes, []string{key.parent}, []string{key.child})
		o.log.Debug("spliced expert nodes", "parent", key.parent, "count", len(nodes))
		o.publish(model.Event{
			Type:      model.EventExpertTriggered,
			ParentID:  key.parent,
			ChildID:   key.child,
			Timestamp: time.Now(),
		})
	}
}

func (o *Orchestrator) applyLocked(ev model.Event) {
	if o.completed && ev.Type != model.EventQOMCompleted {
		o.log.Warn("event after run completion dropped", "type", ev.Type)
		return
	}

	switch ev.Type {
	case model.EventQOMInitialized:
		for _, n := range ev.InitialNodes {
			o.graph.AddNode(n)
		}
		for _, l := range ev.InitialLinks {
			o.graph.AddLink(l)
		}

	case model.EventNodeStarted:
		if err := o.updateNodeLocked(ev.NodeID, model.NodeRunning, ev.Patch); err != nil {
			o.log.Warn("node_started rejected", "node", ev.NodeID, "err", err)
			return
		}

	case model.EventNodeProgress:
		if err := o.updateNodeLocked(ev.NodeID, "", ev.Patch); err != nil {
			o.log.Warn("node_progress rejected", "node", ev.NodeID, "err", err)
			return
		}

	case model.EventNodeCompleted:
		if err := o.updateNodeLocked(ev.NodeID, model.NodeCompleted, ev.Patch); err != nil {
			o.log.Warn("node_completed rejected", "node", ev.NodeID, "err", err)
			return
		}

	case model.EventNodeFailed:
		if err := o.updateNodeLocked(ev.NodeID, model.NodeFailed, ev.Patch); err != nil {
			o.log.Warn("node_failed rejected", "node", ev.NodeID, "err", err)
			return
		}
		o.maybeScheduleRetryLocked(ev)

	case model.EventModelSwitched:
		if err := o.updateNodeLocked(ev.NodeID, "", ev.Patch); err != nil {
			o.log.Warn("model_switched rejected", "node", ev.NodeID, "err", err)
			return
		}

	case model.EventRelationshipAdded:
		if ev.Link == nil {
			o.log.Warn("relationship_added without link dropped")
			return
		}
		o.graph.AddLink(*ev.Link)

	case model.EventQOMCompleted:
		o.finalizeLocked()

	default:
		// Forward compatibility: unknown event types are not an error.
		o.log.Warn("unknown event type dropped", "type", ev.Type)
		return
	}

	o.publish(ev)
}

func (o *Orchestrator) maybeScheduleRetryLocked(ev model.Event) {
	node, ok := o.graph.Node(ev.NodeID)
	if !ok || !ev.WillRetry || node.FallbackModel == "" {
		return
	}

	fallback := node.FallbackModel
	id := node.ID
	o.log.Info("scheduling retry on fallback model", "node", id, "model", fallback)

	if o.retryDelay <= 0 {
		o.retryLocked(id, fallback)
		return
	}
	time.AfterFunc(o.retryDelay, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.retryLocked(id, fallback)
	})
}

func (o *Orchestrator) retryLocked(id, fallback string) {
	if o.completed {
		return
	}
	patch := &model.NodePatch{Model: fallback}
	if err := o.updateNodeLocked(id, model.NodeRunning, patch); err != nil {
		o.log.Warn("retry resume rejected", "node", id, "err", err)
		return
	}
	o.publish(model.Event{
		Type:      model.EventModelSwitched,
		NodeID:    id,
		Patch:     patch,
		Timestamp: time.Now(),
	})
}

// UpdateNodeState is the single external mutation point for node lifecycle.
func (o *Orchestrator) UpdateNodeState(id string, state model.NodeState, patch *model.NodePatch) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.updateNodeLocked(id, state, patch)
}

func (o *Orchestrator) updateNodeLocked(id string, state model.NodeState, patch *model.NodePatch) error {
	if o.completed {
		return ErrRunCompleted
	}
	node, ok := o.graph.Node(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}

	if state != "" && state != node.State && !transitionAllowed(node.State, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, node.State, state)
	}

	if patch != nil {
		applyPatch(node, patch)
	}
	if state != "" {
		node.State = state
	}
	return nil
}

func applyPatch(node *model.ExpertNode, patch *model.NodePatch) {
	if patch.Provider != "" {
		node.Provider = patch.Provider
	}
	if patch.Model != "" {
		node.Model = patch.Model
	}
	if patch.Output != nil {
		node.Output = patch.Output
	}
	if patch.Error != "" {
		node.Error = patch.Error
	}
	if patch.Progress != nil {
		node.Progress = *patch.Progress
	}
	if patch.StartedAt != nil {
		node.StartedAt = patch.StartedAt
	}
	if patch.CompletedAt != nil {
		node.CompletedAt = patch.CompletedAt
	}
	if patch.DurationMs != nil {
		node.DurationMs = *patch.DurationMs
	}
	if patch.Cost != nil {
		node.Cost = *patch.Cost
	}
	if patch.TokenUsage != nil {
		node.TokenUsage.Add(*patch.TokenUsage)
	}
}

func transitionAllowed(from, to model.NodeState) bool {
	switch from {
	case model.NodePending:
		return to == model.NodeRunning || to == model.NodeSkipped
	case model.NodeRunning:
		return to == model.NodeCompleted || to == model.NodeFailed
	case model.NodeFailed:
		// Retry on a fallback model resumes the node.
		return to == model.NodeRunning
	default:
		return false
	}
}

// finalizeLocked closes the run: pending nodes whose triggers never fired are
// skipped, aggregate counts settle, and consensus is built. No mutation is
// accepted afterwards.
func (o *Orchestrator) finalizeLocked() {
	if o.completed {
		return
	}
	for _, id := range o.graph.order {
		node := o.graph.nodes[id]
		switch node.State {
		case model.NodePending:
			node.State = model.NodeSkipped
		case model.NodeCompleted:
			o.successCount++
		case model.NodeFailed:
			o.failureCount++
		}
	}
	consensus := BuildConsensus(o.graph.Nodes())
	o.consensus = &consensus
	o.completed = true
	o.log.Info("run completed",
		"nodes", len(o.graph.order),
		"succeeded", o.successCount,
		"failed", o.failureCount,
	)
}

func (o *Orchestrator) publish(ev model.Event) {
	if o.sink != nil {
		o.sink.Publish(ev)
	}
}

// Snapshot returns copies of the current nodes and links.
func (o *Orchestrator) Snapshot() ([]model.ExpertNode, []model.ExpertLink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.graph.Nodes(), o.graph.Links()
}

func (o *Orchestrator) Completed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completed
}

// Counts reports (succeeded, failed, total) node counts.
func (o *Orchestrator) Counts() (int, int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.successCount, o.failureCount, len(o.graph.order)
}

// Consensus returns the reconciled result, available once the run completed.
func (o *Orchestrator) Consensus() (ConsensusResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.consensus == nil {
		return ConsensusResult{}, false
	}
	return *o.consensus, true
}
