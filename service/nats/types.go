package nats

import (
	"time"

	"github.com/brojonat/tzwriter/service/db"
)

// OperationEvent is published to "ops.{source}" once a group is injected.
type OperationEvent struct {
	Hash    string `json:"hash"`
	GroupID string `json:"group_id"`

	Source   string   `json:"source"`
	Network  string   `json:"network"`
	Kinds    []string `json:"kinds"`
	Counters []int64  `json:"counters,omitempty"`

	WorkflowID *string `json:"workflow_id,omitempty"`

	InjectedAt  time.Time `json:"injected_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromOperationGroup converts a journal row to an event for publishing.
func FromOperationGroup(g *db.OperationGroup) *OperationEvent {
	return &OperationEvent{
		Hash:        g.Hash,
		GroupID:     g.GroupID,
		Source:      g.Source,
		Network:     g.Network,
		Kinds:       g.Kinds,
		Counters:    g.Counters,
		WorkflowID:  g.WorkflowID,
		InjectedAt:  g.CreatedAt,
		PublishedAt: time.Now().UTC(),
	}
}

// Subject returns the subject the event is published to.
func (e *OperationEvent) Subject() string {
	return SubjectPrefix + e.Source
}
