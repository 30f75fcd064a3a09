// Package graph implements a level-synchronous DAG task scheduler with
// conditional routing, fan-out dispatch, and fan-in barriers.
//
// A graph is built with Builder, validated at Compile, and executed with
// Invoke. Each node consumes a read-only state snapshot and returns a delta;
// the reducer supplied at construction is the only merge point. Nodes at the
// same level run concurrently and never touch shared state directly.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/tribunal/internal/logging"
)

// Pseudo-node names. Start is the single entry; End and Failure are the
// terminals. They carry no node function.
const (
	Start   = "__start__"
	End     = "__end__"
	Failure = "__failure__"
)

var (
	// ErrCycle is returned by Compile when the edge set contains a cycle.
	ErrCycle = errors.New("graph: cycle detected")
	// ErrUnknownNode is returned by Compile when an edge references an
	// unregistered node.
	ErrUnknownNode = errors.New("graph: edge references unknown node")
	// ErrDuplicateNode is returned by Compile when a node name is registered
	// twice.
	ErrDuplicateNode = errors.New("graph: duplicate node name")
	// ErrStalled is returned by Invoke if no node is runnable before a
	// terminal is reached. A compiled graph cannot normally stall.
	ErrStalled = errors.New("graph: execution stalled before reaching a terminal")
)

// NodeFunc is the unit of work. It receives an immutable snapshot and returns
// its own delta. Implementations must catch their internal failures and
// encode them in the delta; a returned error aborts the whole run.
type NodeFunc[S, D any] func(ctx context.Context, snap S) (D, error)

// RouterFunc inspects state after its source node completes and selects the
// successors to activate.
type RouterFunc[S any] func(snap S) Route

// Route is the tagged result of a router: either a set of successor names or
// an explicit failure. An empty name set resolves to the Failure terminal,
// never to silent termination.
type Route struct {
	names   []string
	failure bool
}

// To routes to the named successors.
func To(names ...string) Route { return Route{names: names} }

// Fail routes to the Failure terminal.
func Fail() Route { return Route{failure: true} }

// targets resolves the route to concrete successor names.
func (r Route) targets() []string {
	if r.failure || len(r.names) == 0 {
		return []string{Failure}
	}
	return r.names
}

type conditional[S any] struct {
	router     RouterFunc[S]
	candidates []string
}

// Builder accumulates nodes and edges for a Graph. Errors are collected and
// reported by Compile.
type Builder[S, D any] struct {
	apply    func(S, D) S
	nodes    map[string]NodeFunc[S, D]
	edges    map[string][]string
	routers  map[string]conditional[S]
	buildErr error
}

// New creates a Builder. apply is the reducer merging a node delta into
// state; it must be pure.
func New[S, D any](apply func(S, D) S) *Builder[S, D] {
	return &Builder[S, D]{
		apply:   apply,
		nodes:   map[string]NodeFunc[S, D]{},
		edges:   map[string][]string{},
		routers: map[string]conditional[S]{},
	}
}

// AddNode registers a named node.
func (b *Builder[S, D]) AddNode(name string, fn NodeFunc[S, D]) *Builder[S, D] {
	switch name {
	case Start, End, Failure:
		b.fail(fmt.Errorf("graph: %q is a reserved node name", name))
		return b
	}
	if _, dup := b.nodes[name]; dup {
		b.fail(fmt.Errorf("%w: %q", ErrDuplicateNode, name))
		return b
	}
	b.nodes[name] = fn
	return b
}

// AddEdge registers an unconditional edge from src to dst.
func (b *Builder[S, D]) AddEdge(src, dst string) *Builder[S, D] {
	b.edges[src] = append(b.edges[src], dst)
	return b
}

// AddConditionalEdges registers a router on src choosing among the candidate
// successors. Candidates the router does not select are skipped, which
// releases any barrier waiting on them.
func (b *Builder[S, D]) AddConditionalEdges(src string, router RouterFunc[S], candidates ...string) *Builder[S, D] {
	if _, dup := b.routers[src]; dup {
		b.fail(fmt.Errorf("graph: node %q already has conditional edges", src))
		return b
	}
	b.routers[src] = conditional[S]{router: router, candidates: candidates}
	return b
}

func (b *Builder[S, D]) fail(err error) {
	if b.buildErr == nil {
		b.buildErr = err
	}
}

// Compile validates the graph and returns an executable form. Validation
// rejects duplicate nodes, references to unregistered nodes, and cycles.
func (b *Builder[S, D]) Compile() (*Graph[S, D], error) {
	if b.buildErr != nil {
		return nil, b.buildErr
	}

	known := func(name string) bool {
		if name == Start || name == End || name == Failure {
			return true
		}
		_, ok := b.nodes[name]
		return ok
	}

	// preds includes conditional candidates: a barrier waits on every
	// declared predecessor, whether it ran or was skipped.
	preds := map[string][]string{}
	allSucc := map[string][]string{}
	addEdge := func(src, dst string) error {
		if !known(src) {
			return fmt.Errorf("%w: %q", ErrUnknownNode, src)
		}
		if !known(dst) {
			return fmt.Errorf("%w: %q", ErrUnknownNode, dst)
		}
		allSucc[src] = append(allSucc[src], dst)
		preds[dst] = append(preds[dst], src)
		return nil
	}
	for src, dsts := range b.edges {
		for _, dst := range dsts {
			if err := addEdge(src, dst); err != nil {
				return nil, err
			}
		}
	}
	for src, c := range b.routers {
		for _, dst := range c.candidates {
			if err := addEdge(src, dst); err != nil {
				return nil, err
			}
		}
	}

	if err := checkAcyclic(allSucc); err != nil {
		return nil, err
	}

	return &Graph[S, D]{
		apply:   b.apply,
		nodes:   b.nodes,
		edges:   b.edges,
		routers: b.routers,
		preds:   preds,
	}, nil
}

// checkAcyclic runs Kahn's algorithm over the full successor map.
func checkAcyclic(succ map[string][]string) error {
	indeg := map[string]int{}
	for src, dsts := range succ {
		if _, ok := indeg[src]; !ok {
			indeg[src] = 0
		}
		for _, dst := range dsts {
			indeg[dst]++
		}
	}
	queue := make([]string, 0, len(indeg))
	for n, d := range indeg {
		if d == 0 {
			queue = append(queue, n)
		}
	}
	seen := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		seen++
		for _, dst := range succ[n] {
			indeg[dst]--
			if indeg[dst] == 0 {
				queue = append(queue, dst)
			}
		}
	}
	if seen != len(indeg) {
		return ErrCycle
	}
	return nil
}

// Graph is a compiled, executable DAG.
type Graph[S, D any] struct {
	apply   func(S, D) S
	nodes   map[string]NodeFunc[S, D]
	edges   map[string][]string
	routers map[string]conditional[S]
	preds   map[string][]string
}

// Trace records what a run did: which terminal it reached, which nodes ran,
// and which were skipped by routing.
type Trace struct {
	Terminal string
	Ran      []string
	Skipped  []string
}

type status int

const (
	statusPending status = iota
	statusActive
	statusDone
	statusSkipped
)

// Invoke executes the graph from the initial state. It dispatches every
// ready node concurrently, waits for the whole level (no partial results
// admitted early), applies the deltas in deterministic node-name order, and
// recomputes the ready set. Each node runs at most once. A node error aborts
// the run; node implementations are expected to make that unreachable by
// encoding failures in their deltas.
func (g *Graph[S, D]) Invoke(ctx context.Context, initial S) (S, *Trace, error) {
	log := logging.New("graph")

	st := map[string]status{}
	for name := range g.nodes {
		st[name] = statusPending
	}
	st[End] = statusPending
	st[Failure] = statusPending

	cur := initial
	st[Start] = statusDone
	g.activateSuccessors(Start, cur, st)

	trace := &Trace{}
	for {
		g.propagateSkips(st)

		if st[Failure] == statusActive {
			trace.Terminal = Failure
			g.finishTrace(st, trace)
			return cur, trace, nil
		}
		if st[End] == statusActive {
			trace.Terminal = End
			g.finishTrace(st, trace)
			return cur, trace, nil
		}

		ready := g.readySet(st)
		if len(ready) == 0 {
			return cur, trace, ErrStalled
		}

		log.Debug("dispatching level", "nodes", ready)

		// Fan-out: the whole ready set runs concurrently against the same
		// immutable snapshot.
		deltas := make([]D, len(ready))
		eg, egCtx := errgroup.WithContext(ctx)
		snap := cur
		for i, name := range ready {
			i, name := i, name
			eg.Go(func() error {
				d, err := g.nodes[name](egCtx, snap)
				if err != nil {
					return fmt.Errorf("graph: node %q: %w", name, err)
				}
				deltas[i] = d
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return cur, trace, err
		}

		// Barrier passed: merge every delta centrally. ready is sorted, so
		// application order is deterministic within the level.
		for _, d := range deltas {
			cur = g.apply(cur, d)
		}
		for _, name := range ready {
			st[name] = statusDone
			g.activateSuccessors(name, cur, st)
		}
	}
}

// readySet returns the sorted names of active nodes whose predecessors have
// all resolved (hard barrier: done or skipped).
func (g *Graph[S, D]) readySet(st map[string]status) []string {
	var ready []string
	for name, s := range st {
		if s != statusActive || name == End || name == Failure {
			continue
		}
		if g.predsResolved(name, st) {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)
	return ready
}

func (g *Graph[S, D]) predsResolved(name string, st map[string]status) bool {
	for _, p := range g.preds[name] {
		if p == Start {
			continue
		}
		if s := st[p]; s != statusDone && s != statusSkipped {
			return false
		}
	}
	return true
}

// activateSuccessors marks the successors of a completed node. Unconditional
// successors always activate; conditional candidates activate only if the
// router selects them and are skipped otherwise, unless another path already
// activated them.
func (g *Graph[S, D]) activateSuccessors(name string, cur S, st map[string]status) {
	for _, dst := range g.edges[name] {
		if st[dst] == statusPending || st[dst] == statusSkipped {
			st[dst] = statusActive
		}
	}
	c, ok := g.routers[name]
	if !ok {
		return
	}
	chosen := map[string]bool{}
	for _, dst := range c.router(cur).targets() {
		chosen[dst] = true
		if st[dst] == statusPending || st[dst] == statusSkipped {
			st[dst] = statusActive
		}
	}
	for _, cand := range c.candidates {
		if !chosen[cand] && st[cand] == statusPending {
			st[cand] = statusSkipped
		}
	}
}

// propagateSkips marks nodes that can never activate: every predecessor has
// resolved without selecting them. This releases downstream barriers.
func (g *Graph[S, D]) propagateSkips(st map[string]status) {
	for changed := true; changed; {
		changed = false
		for name, s := range st {
			if s != statusPending || name == End || name == Failure {
				continue
			}
			if len(g.preds[name]) == 0 {
				continue
			}
			allSkipped := true
			for _, p := range g.preds[name] {
				if st[p] != statusSkipped {
					allSkipped = false
					break
				}
			}
			if allSkipped {
				st[name] = statusSkipped
				changed = true
			}
		}
	}
}

func (g *Graph[S, D]) finishTrace(st map[string]status, trace *Trace) {
	for name, s := range st {
		if name == Start || name == End || name == Failure {
			continue
		}
		switch s {
		case statusDone:
			trace.Ran = append(trace.Ran, name)
		case statusSkipped:
			trace.Skipped = append(trace.Skipped, name)
		}
	}
	sort.Strings(trace.Ran)
	sort.Strings(trace.Skipped)
}
