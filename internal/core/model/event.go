package model

import "time"

type EventType string

const (
	EventQOMInitialized    EventType = "qom_initialized"
	EventNodeStarted       EventType = "node_started"
	EventNodeProgress      EventType = "node_progress"
	EventNodeCompleted     EventType = "node_completed"
	EventNodeFailed        EventType = "node_failed"
	EventExpertTriggered   EventType = "expert_triggered"
	EventRelationshipAdded EventType = "relationship_added"
	EventModelSwitched     EventType = "model_switched"
	EventQOMCompleted      EventType = "qom_completed"
)

// Event is one lifecycle message for the expert graph. Only the fields
// relevant to the event type are set; unknown types are logged and dropped.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	NodeID    string    `json:"node_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// node_started / node_progress / node_completed / node_failed / model_switched
	Patch *NodePatch `json:"patch,omitempty"`

	// node_failed retry scheduling
	WillRetry bool `json:"will_retry,omitempty"`

	// qom_initialized
	InitialNodes []ExpertNode `json:"initial_nodes,omitempty"`
	InitialLinks []ExpertLink `json:"initial_links,omitempty"`

	// expert_triggered: new node to splice under ParentID, in front of ChildID
	ParentID string      `json:"parent_id,omitempty"`
	ChildID  string      `json:"child_id,omitempty"`
	NewNode  *ExpertNode `json:"new_node,omitempty"`

	// relationship_added
	Link *ExpertLink `json:"link,omitempty"`
}
