// Package template materializes process graphs from portable JSON
// definitions. Definitions are schema-validated before any model object is
// built, so a malformed blob never half-applies to a process.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/procwise/procwise/pkg/models"
)

var ErrInvalidDefinition = errors.New("invalid process definition")

// Definition is a portable process graph: what an editor exports and a
// template catalog stores.
type Definition struct {
	Name        string                `json:"name,omitempty"`
	Description string                `json:"description,omitempty"`
	Trigger     *models.TriggerPolicy `json:"trigger,omitempty"`
	Nodes       []*models.Node        `json:"nodes"`
	Edges       []*models.Edge        `json:"edges"`
}

const definitionSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["nodes", "edges"],
	"properties": {
		"name": {"type": "string"},
		"description": {"type": "string"},
		"trigger": {
			"type": "object",
			"properties": {
				"enabled": {"type": "boolean"},
				"on": {"enum": ["create", "write", "both"]},
				"condition": {"type": "string"}
			}
		},
		"nodes": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "name", "type"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"name": {"type": "string", "minLength": 1},
					"type": {"enum": ["start", "task", "gateway", "end"]},
					"sequence": {"type": "integer"},
					"position_x": {"type": "number"},
					"position_y": {"type": "number"},
					"auto_action": {"type": "string"},
					"auto_action_config": {"type": "object"},
					"code_hook": {"type": "string"},
					"requires_validation": {"type": "boolean"},
					"assignee_user_id": {"type": "string"},
					"assignee_group_id": {"type": "string"},
					"email": {
						"type": "object",
						"properties": {
							"enabled": {"type": "boolean"},
							"to": {"enum": ["assigned_user", "instance_owner", "custom"]},
							"custom_address": {"type": "string"},
							"subject": {"type": "string"},
							"body": {"type": "string"}
						}
					},
					"end_outcome": {"enum": ["success", "failure", "cancelled"]},
					"end_action": {"enum": ["none", "archive", "notify", "both"]}
				}
			}
		},
		"edges": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "source_id", "target_id"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"name": {"type": "string"},
					"source_id": {"type": "string", "minLength": 1},
					"target_id": {"type": "string", "minLength": 1},
					"sequence": {"type": "integer"},
					"condition": {
						"type": "object",
						"properties": {
							"type": {"enum": ["always", "field", "expression"]},
							"field": {"type": "string"},
							"operator": {"enum": [">", ">=", "<", "<=", "==", "!=", "in", "not in"]},
							"value": {"type": "string"},
							"expression": {"type": "string"}
						}
					},
					"assignee_user_id": {"type": "string"},
					"notify_assignee": {"type": "boolean"}
				}
			}
		}
	}
}`

// Parse validates a definition blob against the schema and decodes it.
func Parse(data []byte) (*Definition, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(definitionSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return nil, fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(details, "; "))
	}

	var definition Definition

	if err := json.Unmarshal(data, &definition); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	return &definition, nil
}

// Apply replaces a process's graph with the definition's. Node and edge
// uniqueness and edge endpoint membership are enforced the same way manual
// graph edits are. The raw blob is kept on the process for round-tripping
// back to editors.
func (d *Definition) Apply(process *models.Process, raw []byte) error {
	process.Nodes = make([]*models.Node, 0, len(d.Nodes))
	process.Edges = make([]*models.Edge, 0, len(d.Edges))

	for _, node := range d.Nodes {
		if err := process.AddNode(node); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
		}
	}

	for _, edge := range d.Edges {
		if err := process.AddEdge(edge); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
		}
	}

	if d.Name != "" {
		process.Name = d.Name
	}

	if d.Description != "" {
		process.Description = d.Description
	}

	if d.Trigger != nil {
		process.Trigger = d.Trigger
	}

	process.Definition = json.RawMessage(raw)
	process.UpdatedAt = time.Now().UTC()

	return nil
}

// Export renders a process graph back into a definition blob.
func Export(process *models.Process) ([]byte, error) {
	definition := Definition{
		Name:        process.Name,
		Description: process.Description,
		Trigger:     process.Trigger,
		Nodes:       process.Nodes,
		Edges:       process.Edges,
	}

	return json.MarshalIndent(definition, "", "  ")
}
