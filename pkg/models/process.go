// Package models defines the core domain models for BPM process definitions
// and their executions.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// TriggerEvent selects which target-entity mutations start a process
// automatically.
type TriggerEvent string

const (
	TriggerOnCreate TriggerEvent = "create"
	TriggerOnWrite  TriggerEvent = "write"
	TriggerOnBoth   TriggerEvent = "both"
)

// Matches reports whether the policy event covers the given mutation event.
func (e TriggerEvent) Matches(event TriggerEvent) bool {
	return e == event || e == TriggerOnBoth
}

// TriggerPolicy configures automatic instance creation from entity mutation
// events. Condition is an optional guard expression evaluated against the
// mutated record.
type TriggerPolicy struct {
	Enabled   bool         `json:"enabled"`
	On        TriggerEvent `json:"on"                  validate:"omitempty,oneof=create write both"`
	Condition string       `json:"condition,omitempty"`
}

// Process is a named, versioned workflow definition bound to one target
// entity type. It owns its nodes and edges; instances only reference them.
type Process struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"                 validate:"required,min=3"`
	Description string          `json:"description,omitempty"`
	TargetType  string          `json:"target_type"          validate:"required"`
	Version     string          `json:"version"`
	Active      bool            `json:"active"`
	Trigger     *TriggerPolicy  `json:"trigger,omitempty"`
	Definition  json.RawMessage `json:"definition,omitempty"` // editor layout blob, advisory only
	Nodes       []*Node         `json:"nodes"`
	Edges       []*Edge         `json:"edges"`
	Owner       string          `json:"owner"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

var (
	ErrNodeNotInProcess = errors.New("node does not belong to process")
	ErrDuplicateNodeID  = errors.New("node id already used in process")
	ErrDuplicateEdgeID  = errors.New("edge id already used in process")
)

// NewProcess creates an inactive process definition for the given target
// entity type.
func NewProcess(name, targetType, owner string) *Process {
	now := time.Now().UTC()

	return &Process{
		ID:         generateID("proc"),
		Name:       name,
		TargetType: targetType,
		Version:    "1.0",
		Owner:      owner,
		Nodes:      make([]*Node, 0),
		Edges:      make([]*Edge, 0),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NodeByID returns the node with the given ID, or nil.
func (p *Process) NodeByID(id string) *Node {
	for _, n := range p.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}

// EdgeByID returns the edge with the given ID, or nil.
func (p *Process) EdgeByID(id string) *Edge {
	for _, e := range p.Edges {
		if e.ID == id {
			return e
		}
	}

	return nil
}

// NodesOfType returns the nodes of the given type in declaration order.
func (p *Process) NodesOfType(t NodeType) []*Node {
	nodes := make([]*Node, 0)

	for _, n := range p.Nodes {
		if n.Type == t {
			nodes = append(nodes, n)
		}
	}

	return nodes
}

// StartNode returns the unique start node. It errors when the process has
// zero or more than one start node, which also makes it unstartable.
func (p *Process) StartNode() (*Node, error) {
	starts := p.NodesOfType(NodeTypeStart)

	switch len(starts) {
	case 0:
		return nil, errors.New("process has no start node")
	case 1:
		return starts[0], nil
	default:
		return nil, errors.New("process has multiple start nodes")
	}
}

// OutgoingEdges returns the edges leaving a node, ordered by sequence with
// edge ID as tie-break. Transition evaluation follows this order.
func (p *Process) OutgoingEdges(nodeID string) []*Edge {
	edges := make([]*Edge, 0)

	for _, e := range p.Edges {
		if e.SourceID == nodeID {
			edges = append(edges, e)
		}
	}

	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Sequence != edges[j].Sequence {
			return edges[i].Sequence < edges[j].Sequence
		}

		return edges[i].ID < edges[j].ID
	})

	return edges
}

// IncomingEdges returns the edges arriving at a node.
func (p *Process) IncomingEdges(nodeID string) []*Edge {
	edges := make([]*Edge, 0)

	for _, e := range p.Edges {
		if e.TargetID == nodeID {
			edges = append(edges, e)
		}
	}

	return edges
}

// AddNode attaches a node to the process, enforcing ID uniqueness within it.
func (p *Process) AddNode(node *Node) error {
	if p.NodeByID(node.ID) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateNodeID, node.ID)
	}

	p.Nodes = append(p.Nodes, node)
	p.UpdatedAt = time.Now().UTC()

	return nil
}

// AddEdge attaches an edge to the process. Both endpoints must already be
// nodes of this process; cross-process transitions are rejected outright.
func (p *Process) AddEdge(edge *Edge) error {
	if p.EdgeByID(edge.ID) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateEdgeID, edge.ID)
	}

	if p.NodeByID(edge.SourceID) == nil {
		return fmt.Errorf("%w: source %s", ErrNodeNotInProcess, edge.SourceID)
	}

	if p.NodeByID(edge.TargetID) == nil {
		return fmt.Errorf("%w: target %s", ErrNodeNotInProcess, edge.TargetID)
	}

	p.Edges = append(p.Edges, edge)
	p.UpdatedAt = time.Now().UTC()

	return nil
}

// generateID builds a short prefixed identifier, matching the editor's
// 8-character node/edge IDs.
func generateID(prefix string) string {
	return prefix + "-" + uuid.New().String()[:8]
}
