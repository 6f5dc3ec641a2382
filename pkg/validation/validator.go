// Package validation checks the structural soundness of process graphs:
// start/end cardinality, connectivity, reachability and loop detection. It
// is read-only; verdicts are recomputed on every call unless the caller opts
// into the structural-hash cache.
package validation

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/procwise/procwise/pkg/models"
)

// Severity classifies a finding. Only errors affect validity.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is a single human-readable validation message.
type Finding struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Result is a validation verdict. Valid means zero error-severity findings;
// warnings are advisory.
type Result struct {
	Valid    bool      `json:"valid"`
	Findings []Finding `json:"findings"`
}

// Errors returns the error-severity findings.
func (r Result) Errors() []Finding {
	return r.filter(SeverityError)
}

// Warnings returns the warning-severity findings.
func (r Result) Warnings() []Finding {
	return r.filter(SeverityWarning)
}

func (r Result) filter(severity Severity) []Finding {
	findings := make([]Finding, 0)

	for _, f := range r.Findings {
		if f.Severity == severity {
			findings = append(findings, f)
		}
	}

	return findings
}

// Mode selects the path and cycle analysis strategy.
//
// ModeLegacy reproduces the historical behavior: reachability by depth-first
// search with a per-path visited set (exponential on pathological graphs but
// exact on the small graphs the editor produces) and a loop heuristic that
// probes one cycle per originating node, which can both under- and
// over-report on multi-cycle graphs.
//
// ModeLinear uses a global breadth-first reachability check and full
// strongly-connected-component cycle detection. It emits equivalent verdicts
// on well-formed graphs but may differ on pathological ones.
type Mode int

const (
	ModeLegacy Mode = iota
	ModeLinear
)

// Validator validates process graphs. The zero value validates in legacy
// mode without caching.
type Validator struct {
	Mode Mode

	cacheEnabled bool
	mu           sync.Mutex
	cache        map[uint64]Result
}

// New creates a validator for the given mode.
func New(mode Mode) *Validator {
	return &Validator{Mode: mode}
}

// NewCached creates a validator that memoizes verdicts keyed on a structural
// hash of the node and edge sets.
func NewCached(mode Mode) *Validator {
	return &Validator{
		Mode:         mode,
		cacheEnabled: true,
		cache:        make(map[uint64]Result),
	}
}

// Validate runs all checks against the process graph, in order: start
// cardinality, end presence, per-node connectivity, start-to-end
// reachability, loop detection.
func (v *Validator) Validate(process *models.Process) Result {
	if v.cacheEnabled {
		key := structuralHash(process)

		v.mu.Lock()
		cached, ok := v.cache[key]
		v.mu.Unlock()

		if ok {
			return cached
		}

		result := v.validate(process)

		v.mu.Lock()
		v.cache[key] = result
		v.mu.Unlock()

		return result
	}

	return v.validate(process)
}

func (v *Validator) validate(process *models.Process) Result {
	findings := make([]Finding, 0)

	errorf := func(format string, args ...any) {
		findings = append(findings, Finding{SeverityError, fmt.Sprintf(format, args...)})
	}
	warnf := func(format string, args ...any) {
		findings = append(findings, Finding{SeverityWarning, fmt.Sprintf(format, args...)})
	}

	startNodes := process.NodesOfType(models.NodeTypeStart)
	endNodes := process.NodesOfType(models.NodeTypeEnd)

	switch {
	case len(startNodes) == 0:
		errorf("no start node found")
	case len(startNodes) > 1:
		errorf("multiple start nodes found (exactly one required)")
	}

	if len(endNodes) == 0 {
		errorf("no end node found")
	}

	for _, node := range process.Nodes {
		incoming := len(process.IncomingEdges(node.ID))
		outgoing := len(process.OutgoingEdges(node.ID))

		switch node.Type {
		case models.NodeTypeStart:
			if outgoing == 0 {
				errorf("start node %q has no outgoing transition", node.Name)
			}
		case models.NodeTypeEnd:
			if incoming == 0 {
				errorf("end node %q has no incoming transition", node.Name)
			}
		default:
			switch {
			case incoming == 0 && outgoing == 0:
				errorf("node %q is orphaned (no connections)", node.Name)
			case incoming == 0:
				warnf("node %q has no incoming transition", node.Name)
			case outgoing == 0:
				warnf("node %q has no outgoing transition", node.Name)
			}
		}
	}

	if len(startNodes) == 1 && len(endNodes) > 0 {
		reachesEnd := false

		if v.Mode == ModeLinear {
			reachesEnd = reachesEndLinear(process, startNodes[0])
		} else {
			reachesEnd = hasPathToEnd(process, startNodes[0], map[string]bool{})
		}

		if !reachesEnd {
			errorf("no path found from the start node to an end node")
		}
	}

	hasLoop := false
	if v.Mode == ModeLinear {
		hasLoop = hasCycleLinear(process)
	} else {
		for _, node := range process.Nodes {
			if createsLoop(process, node, map[string]bool{node.ID: true}, node) {
				hasLoop = true

				break
			}
		}
	}

	if hasLoop {
		warnf("potential infinite loop detected in the workflow")
	}

	errorCount := 0

	for _, f := range findings {
		if f.Severity == SeverityError {
			errorCount++
		}
	}

	return Result{Valid: errorCount == 0, Findings: findings}
}

// hasPathToEnd explores one path at a time: the visited set is copied per
// branch, so a node blocks re-entry only on the current path.
func hasPathToEnd(process *models.Process, node *models.Node, visited map[string]bool) bool {
	if visited[node.ID] {
		return false
	}

	if node.Type == models.NodeTypeEnd {
		return true
	}

	visited[node.ID] = true

	for _, edge := range process.OutgoingEdges(node.ID) {
		target := process.NodeByID(edge.TargetID)
		if target == nil {
			continue
		}

		if hasPathToEnd(process, target, copySet(visited)) {
			return true
		}
	}

	return false
}

// createsLoop probes whether following transitions from origin can return to
// origin through a non-end node. One cycle per origin: paths are cut as soon
// as they revisit any node already seen.
func createsLoop(process *models.Process, current *models.Node, visited map[string]bool, origin *models.Node) bool {
	for _, edge := range process.OutgoingEdges(current.ID) {
		next := process.NodeByID(edge.TargetID)
		if next == nil {
			continue
		}

		if next.ID == origin.ID && next.Type != models.NodeTypeEnd {
			return true
		}

		if visited[next.ID] {
			continue
		}

		visited[next.ID] = true

		if createsLoop(process, next, copySet(visited), origin) {
			return true
		}
	}

	return false
}

func copySet(set map[string]bool) map[string]bool {
	dup := make(map[string]bool, len(set))
	for k := range set {
		dup[k] = true
	}

	return dup
}

// reachesEndLinear is a plain breadth-first reachability check from the
// start node.
func reachesEndLinear(process *models.Process, start *models.Node) bool {
	visited := map[string]bool{start.ID: true}
	queue := []*models.Node{start}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if node.Type == models.NodeTypeEnd {
			return true
		}

		for _, edge := range process.OutgoingEdges(node.ID) {
			target := process.NodeByID(edge.TargetID)
			if target == nil || visited[target.ID] {
				continue
			}

			visited[target.ID] = true
			queue = append(queue, target)
		}
	}

	return false
}

// hasCycleLinear finds cycles of non-end nodes via Tarjan's
// strongly-connected components.
func hasCycleLinear(process *models.Process) bool {
	index := 0
	indexes := make(map[string]int)
	lowlinks := make(map[string]int)
	onStack := make(map[string]bool)
	stack := make([]string, 0)
	found := false

	var strongConnect func(nodeID string)
	strongConnect = func(nodeID string) {
		indexes[nodeID] = index
		lowlinks[nodeID] = index
		index++

		stack = append(stack, nodeID)
		onStack[nodeID] = true

		for _, edge := range process.OutgoingEdges(nodeID) {
			target := edge.TargetID

			if _, seen := indexes[target]; !seen {
				strongConnect(target)

				if lowlinks[target] < lowlinks[nodeID] {
					lowlinks[nodeID] = lowlinks[target]
				}
			} else if onStack[target] && indexes[target] < lowlinks[nodeID] {
				lowlinks[nodeID] = indexes[target]
			}

			// A self-loop on a non-end node is a cycle Tarjan's component
			// size check would miss.
			if target == nodeID {
				if n := process.NodeByID(nodeID); n != nil && n.Type != models.NodeTypeEnd {
					found = true
				}
			}
		}

		if lowlinks[nodeID] == indexes[nodeID] {
			component := make([]string, 0)

			for {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[top] = false
				component = append(component, top)

				if top == nodeID {
					break
				}
			}

			if len(component) > 1 {
				nonEnd := false

				for _, id := range component {
					if n := process.NodeByID(id); n != nil && n.Type != models.NodeTypeEnd {
						nonEnd = true
					}
				}

				if nonEnd {
					found = true
				}
			}
		}
	}

	for _, node := range process.Nodes {
		if _, seen := indexes[node.ID]; !seen {
			strongConnect(node.ID)
		}
	}

	return found
}

// structuralHash hashes the graph's structure (not cosmetic attributes such
// as names or coordinates) so cached verdicts survive relabeling.
func structuralHash(process *models.Process) uint64 {
	h := fnv.New64a()

	nodeKeys := make([]string, 0, len(process.Nodes))
	for _, n := range process.Nodes {
		nodeKeys = append(nodeKeys, fmt.Sprintf("n|%s|%s", n.ID, n.Type))
	}

	edgeKeys := make([]string, 0, len(process.Edges))
	for _, e := range process.Edges {
		edgeKeys = append(edgeKeys, fmt.Sprintf("e|%s|%s|%s|%d", e.ID, e.SourceID, e.TargetID, e.Sequence))
	}

	sort.Strings(nodeKeys)
	sort.Strings(edgeKeys)

	for _, k := range nodeKeys {
		_, _ = h.Write([]byte(k))
	}

	for _, k := range edgeKeys {
		_, _ = h.Write([]byte(k))
	}

	return h.Sum64()
}
