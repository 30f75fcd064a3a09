package graph

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testState is a minimal state for scheduler tests: a map of node name to
// visit count plus a routing hint.
type testState struct {
	visits map[string]int
	route  string
}

type testDelta struct {
	visited string
	route   string
}

func applyTest(s testState, d testDelta) testState {
	out := testState{visits: map[string]int{}, route: s.route}
	for k, v := range s.visits {
		out.visits[k] = v
	}
	if d.visited != "" {
		out.visits[d.visited]++
	}
	if d.route != "" {
		out.route = d.route
	}
	return out
}

func visit(name string) NodeFunc[testState, testDelta] {
	return func(ctx context.Context, s testState) (testDelta, error) {
		return testDelta{visited: name}, nil
	}
}

func TestCompile_RejectsCycle(t *testing.T) {
	b := New(applyTest)
	b.AddNode("a", visit("a")).AddNode("b", visit("b"))
	b.AddEdge(Start, "a").AddEdge("a", "b").AddEdge("b", "a")

	_, err := b.Compile()
	require.ErrorIs(t, err, ErrCycle)
}

func TestCompile_RejectsUnknownNode(t *testing.T) {
	b := New(applyTest)
	b.AddNode("a", visit("a"))
	b.AddEdge(Start, "a").AddEdge("a", "ghost")

	_, err := b.Compile()
	require.ErrorIs(t, err, ErrUnknownNode)
}

func TestCompile_RejectsDuplicateNode(t *testing.T) {
	b := New(applyTest)
	b.AddNode("a", visit("a")).AddNode("a", visit("a"))

	_, err := b.Compile()
	require.ErrorIs(t, err, ErrDuplicateNode)
}

func TestInvoke_FanOutFanInBarrier(t *testing.T) {
	// Start fans out to three detectives; "barrier" must observe all three
	// contributions in its snapshot, and every node runs exactly once.
	var mu sync.Mutex
	var barrierSnap testState

	b := New(applyTest)
	for _, n := range []string{"d1", "d2", "d3"} {
		b.AddNode(n, visit(n))
		b.AddEdge(Start, n)
		b.AddEdge(n, "barrier")
	}
	b.AddNode("barrier", func(ctx context.Context, s testState) (testDelta, error) {
		mu.Lock()
		barrierSnap = s
		mu.Unlock()
		return testDelta{visited: "barrier"}, nil
	})
	b.AddEdge("barrier", End)

	g, err := b.Compile()
	require.NoError(t, err)

	final, trace, err := g.Invoke(context.Background(), testState{visits: map[string]int{}})
	require.NoError(t, err)

	assert.Equal(t, End, trace.Terminal)
	assert.ElementsMatch(t, []string{"d1", "d2", "d3", "barrier"}, trace.Ran)
	for _, n := range []string{"d1", "d2", "d3"} {
		assert.Equal(t, 1, barrierSnap.visits[n], "barrier ran before %s joined", n)
		assert.Equal(t, 1, final.visits[n], "node %s must run exactly once", n)
	}
	assert.Equal(t, 1, final.visits["barrier"])
}

func TestInvoke_ConditionalRoutingSkipsUnchosen(t *testing.T) {
	// The router selects only d1 and d3; d2 is skipped, and the barrier
	// must still release.
	b := New(applyTest)
	b.AddNode("triage", visit("triage"))
	b.AddEdge(Start, "triage")
	for _, n := range []string{"d1", "d2", "d3"} {
		b.AddNode(n, visit(n))
		b.AddEdge(n, "barrier")
	}
	b.AddConditionalEdges("triage", func(s testState) Route {
		return To("d1", "d3")
	}, "d1", "d2", "d3")
	b.AddNode("barrier", visit("barrier"))
	b.AddEdge("barrier", End)

	g, err := b.Compile()
	require.NoError(t, err)

	final, trace, err := g.Invoke(context.Background(), testState{visits: map[string]int{}})
	require.NoError(t, err)

	assert.Equal(t, End, trace.Terminal)
	assert.Contains(t, trace.Skipped, "d2")
	assert.Zero(t, final.visits["d2"])
	assert.Equal(t, 1, final.visits["barrier"])
}

func TestInvoke_EmptyRouteResolvesToFailure(t *testing.T) {
	// Zero candidates must resolve to the Failure terminal, never to
	// silent termination.
	b := New(applyTest)
	b.AddNode("triage", visit("triage"))
	b.AddEdge(Start, "triage")
	b.AddNode("d1", visit("d1"))
	b.AddConditionalEdges("triage", func(s testState) Route {
		return To() // nothing runnable
	}, "d1")
	b.AddEdge("d1", End)

	g, err := b.Compile()
	require.NoError(t, err)

	_, trace, err := g.Invoke(context.Background(), testState{visits: map[string]int{}})
	require.NoError(t, err)
	assert.Equal(t, Failure, trace.Terminal)
	assert.Contains(t, trace.Skipped, "d1")
}

func TestInvoke_ExplicitFailureRoute(t *testing.T) {
	b := New(applyTest)
	b.AddNode("triage", visit("triage"))
	b.AddEdge(Start, "triage")
	b.AddNode("d1", visit("d1"))
	b.AddConditionalEdges("triage", func(s testState) Route {
		return Fail()
	}, "d1")
	b.AddEdge("d1", End)

	g, err := b.Compile()
	require.NoError(t, err)

	_, trace, err := g.Invoke(context.Background(), testState{visits: map[string]int{}})
	require.NoError(t, err)
	assert.Equal(t, Failure, trace.Terminal)
}

func TestInvoke_NodeErrorAbortsRun(t *testing.T) {
	boom := errors.New("boom")
	b := New(applyTest)
	b.AddNode("bad", func(ctx context.Context, s testState) (testDelta, error) {
		return testDelta{}, boom
	})
	b.AddEdge(Start, "bad").AddEdge("bad", End)

	g, err := b.Compile()
	require.NoError(t, err)

	_, _, err = g.Invoke(context.Background(), testState{visits: map[string]int{}})
	require.ErrorIs(t, err, boom)
}

func TestInvoke_RouterSeesMergedState(t *testing.T) {
	// The router runs against the state after its source node's delta has
	// been applied.
	b := New(applyTest)
	b.AddNode("triage", func(ctx context.Context, s testState) (testDelta, error) {
		return testDelta{visited: "triage", route: "d2"}, nil
	})
	b.AddEdge(Start, "triage")
	b.AddNode("d1", visit("d1")).AddNode("d2", visit("d2"))
	b.AddConditionalEdges("triage", func(s testState) Route {
		return To(s.route)
	}, "d1", "d2")
	b.AddEdge("d1", End).AddEdge("d2", End)

	g, err := b.Compile()
	require.NoError(t, err)

	final, trace, err := g.Invoke(context.Background(), testState{visits: map[string]int{}})
	require.NoError(t, err)
	assert.Equal(t, End, trace.Terminal)
	assert.Equal(t, 1, final.visits["d2"])
	assert.Zero(t, final.visits["d1"])
}
