package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procwise/procwise/pkg/models"
)

func node(id string, nodeType models.NodeType) *models.Node {
	return &models.Node{ID: id, Name: id, Type: nodeType}
}

func edge(id, source, target string) *models.Edge {
	return &models.Edge{ID: id, SourceID: source, TargetID: target, Sequence: 10, Condition: models.Always()}
}

func buildProcess(t *testing.T, nodes []*models.Node, edges []*models.Edge) *models.Process {
	t.Helper()

	process := models.NewProcess("test process", "invoice", "owner-1")

	for _, n := range nodes {
		require.NoError(t, process.AddNode(n))
	}

	for _, e := range edges {
		require.NoError(t, process.AddEdge(e))
	}

	return process
}

func linearProcess(t *testing.T) *models.Process {
	t.Helper()

	return buildProcess(t,
		[]*models.Node{
			node("start", models.NodeTypeStart),
			node("task", models.NodeTypeTask),
			node("end", models.NodeTypeEnd),
		},
		[]*models.Edge{
			edge("e1", "start", "task"),
			edge("e2", "task", "end"),
		},
	)
}

func messages(findings []Finding) []string {
	msgs := make([]string, 0, len(findings))
	for _, f := range findings {
		msgs = append(msgs, f.Message)
	}

	return msgs
}

func modes() map[string]Mode {
	return map[string]Mode{"legacy": ModeLegacy, "linear": ModeLinear}
}

func TestValidate_ValidLinearGraph(t *testing.T) {
	for name, mode := range modes() {
		t.Run(name, func(t *testing.T) {
			result := New(mode).Validate(linearProcess(t))

			assert.True(t, result.Valid)
			assert.Empty(t, result.Errors())
			assert.Empty(t, result.Warnings())
		})
	}
}

func TestValidate_StartCardinality(t *testing.T) {
	t.Run("no start node", func(t *testing.T) {
		process := buildProcess(t,
			[]*models.Node{node("task", models.NodeTypeTask), node("end", models.NodeTypeEnd)},
			[]*models.Edge{edge("e1", "task", "end")},
		)

		result := New(ModeLegacy).Validate(process)

		assert.False(t, result.Valid)
		assert.Contains(t, messages(result.Errors()), "no start node found")
	})

	t.Run("multiple start nodes", func(t *testing.T) {
		process := buildProcess(t,
			[]*models.Node{
				node("start-a", models.NodeTypeStart),
				node("start-b", models.NodeTypeStart),
				node("end", models.NodeTypeEnd),
			},
			[]*models.Edge{
				edge("e1", "start-a", "end"),
				edge("e2", "start-b", "end"),
			},
		)

		result := New(ModeLegacy).Validate(process)

		assert.False(t, result.Valid)
		assert.Contains(t, messages(result.Errors()), "multiple start nodes found (exactly one required)")
	})
}

func TestValidate_NoEndNode(t *testing.T) {
	process := buildProcess(t,
		[]*models.Node{node("start", models.NodeTypeStart), node("task", models.NodeTypeTask)},
		[]*models.Edge{edge("e1", "start", "task")},
	)

	result := New(ModeLegacy).Validate(process)

	assert.False(t, result.Valid)
	assert.Contains(t, messages(result.Errors()), "no end node found")
}

func TestValidate_Connectivity(t *testing.T) {
	process := buildProcess(t,
		[]*models.Node{
			node("start", models.NodeTypeStart),
			node("task", models.NodeTypeTask),
			node("orphan", models.NodeTypeTask),
			node("dangling", models.NodeTypeTask),
			node("end", models.NodeTypeEnd),
		},
		[]*models.Edge{
			edge("e1", "start", "task"),
			edge("e2", "task", "end"),
			edge("e3", "task", "dangling"),
		},
	)

	result := New(ModeLegacy).Validate(process)

	assert.False(t, result.Valid)
	assert.Contains(t, messages(result.Errors()), `node "orphan" is orphaned (no connections)`)
	assert.Contains(t, messages(result.Warnings()), `node "dangling" has no outgoing transition`)
}

func TestValidate_StartWithoutOutgoing(t *testing.T) {
	process := buildProcess(t,
		[]*models.Node{
			node("start", models.NodeTypeStart),
			node("task", models.NodeTypeTask),
			node("end", models.NodeTypeEnd),
		},
		[]*models.Edge{edge("e1", "task", "end")},
	)

	result := New(ModeLegacy).Validate(process)

	assert.False(t, result.Valid)
	assert.Contains(t, messages(result.Errors()), `start node "start" has no outgoing transition`)
}

func TestValidate_NoPathToEnd(t *testing.T) {
	// The start branch dead-ends in a task; the end node is fed from an
	// unreachable island.
	process := buildProcess(t,
		[]*models.Node{
			node("start", models.NodeTypeStart),
			node("task-a", models.NodeTypeTask),
			node("task-b", models.NodeTypeTask),
			node("end", models.NodeTypeEnd),
		},
		[]*models.Edge{
			edge("e1", "start", "task-a"),
			edge("e2", "task-b", "end"),
		},
	)

	for name, mode := range modes() {
		t.Run(name, func(t *testing.T) {
			result := New(mode).Validate(process)

			assert.False(t, result.Valid)
			assert.Contains(t, messages(result.Errors()), "no path found from the start node to an end node")
		})
	}
}

func TestValidate_LoopWarning(t *testing.T) {
	process := buildProcess(t,
		[]*models.Node{
			node("start", models.NodeTypeStart),
			node("task-a", models.NodeTypeTask),
			node("task-b", models.NodeTypeTask),
			node("end", models.NodeTypeEnd),
		},
		[]*models.Edge{
			edge("e1", "start", "task-a"),
			edge("e2", "task-a", "task-b"),
			edge("e3", "task-b", "task-a"),
			edge("e4", "task-a", "end"),
		},
	)

	for name, mode := range modes() {
		t.Run(name, func(t *testing.T) {
			result := New(mode).Validate(process)

			// A loop is advisory only; the graph stays valid.
			assert.True(t, result.Valid)
			assert.Contains(t, messages(result.Warnings()), "potential infinite loop detected in the workflow")
		})
	}
}

func TestValidate_SelfLoop(t *testing.T) {
	process := buildProcess(t,
		[]*models.Node{
			node("start", models.NodeTypeStart),
			node("task", models.NodeTypeTask),
			node("end", models.NodeTypeEnd),
		},
		[]*models.Edge{
			edge("e1", "start", "task"),
			edge("e2", "task", "task"),
			edge("e3", "task", "end"),
		},
	)

	for name, mode := range modes() {
		t.Run(name, func(t *testing.T) {
			result := New(mode).Validate(process)

			assert.True(t, result.Valid)
			assert.Contains(t, messages(result.Warnings()), "potential infinite loop detected in the workflow")
		})
	}
}

func TestValidate_CachedReusesVerdict(t *testing.T) {
	v := NewCached(ModeLegacy)
	process := linearProcess(t)

	first := v.Validate(process)
	require.True(t, first.Valid)

	// Cosmetic changes keep the structural hash stable.
	process.Name = "renamed"
	second := v.Validate(process)
	assert.Equal(t, first, second)

	// Structural changes miss the cache and revalidate.
	require.NoError(t, process.AddNode(node("extra", models.NodeTypeTask)))
	third := v.Validate(process)
	assert.False(t, third.Valid)
}
