package forensics

import (
	"context"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Edge is one declared edge in the candidate graph.
type Edge struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// GraphForensics is the extracted topology of a candidate graph file.
type GraphForensics struct {
	InstanceFound    bool   `json:"instance_found"`
	BuilderName      string `json:"builder_name,omitempty"`
	Edges            []Edge `json:"edges"`
	FanOutCount      int    `json:"fan_out_count"`
	FanInCount       int    `json:"fan_in_count"`
	ConditionalEdges int    `json:"conditional_edges"`
	Compiled         bool   `json:"compiled"`
	// CompiledOnBuilder is true only when CompileCall was invoked on the
	// identifier recorded at instantiation, so success is never credited to
	// an unrelated, similarly-named object.
	CompiledOnBuilder bool `json:"compiled_on_builder"`
}

// AnalyzeGraph parses the source file at path and extracts its declared
// graph topology in one deterministic pass. A missing file or parse failure
// returns the zero value.
func AnalyzeGraph(ctx context.Context, path string, prof Profile) GraphForensics {
	root, src, ok := parseFile(ctx, path)
	if !ok {
		return GraphForensics{}
	}

	f := foldGraph(root, src, prof, GraphForensics{})

	// Fan-out is the out-degree of the designated start node; fan-in is the
	// maximum in-degree across all other nodes.
	indeg := map[string]int{}
	for _, e := range f.Edges {
		if e.Src == prof.StartName {
			f.FanOutCount++
		}
		indeg[e.Dst]++
	}
	for _, n := range indeg {
		if n > f.FanInCount {
			f.FanInCount = n
		}
	}
	return f
}

// parseFile reads and parses a Python source file. The tree is fully
// consumed before return, so it is closed here.
func parseFile(ctx context.Context, path string) (root *sitter.Node, src []byte, ok bool) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, false
	}
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, nil, false
	}
	return tree.RootNode(), src, true
}

// foldGraph is a pure recursive descent over the syntax tree accumulating
// into f. Instantiation is recorded before the compile check consumes it,
// which holds for any source where the builder is bound before being
// compiled (source order).
func foldGraph(n *sitter.Node, src []byte, prof Profile, f GraphForensics) GraphForensics {
	switch n.Type() {
	case "assignment":
		f = foldAssignment(n, src, prof, f)
	case "call":
		f = foldCall(n, src, prof, f)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		f = foldGraph(n.NamedChild(i), src, prof, f)
	}
	return f
}

// foldAssignment detects builder instantiation: name = BuilderType(...).
func foldAssignment(n *sitter.Node, src []byte, prof Profile, f GraphForensics) GraphForensics {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil || right == nil || right.Type() != "call" {
		return f
	}
	fn := right.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" || text(fn, src) != prof.BuilderType {
		return f
	}
	f.InstanceFound = true
	if left.Type() == "identifier" {
		f.BuilderName = text(left, src)
	}
	return f
}

// foldCall detects edge registration, conditional edges, and compilation.
func foldCall(n *sitter.Node, src []byte, prof Profile, f GraphForensics) GraphForensics {
	fn := n.ChildByFieldName("function")
	if fn == nil || fn.Type() != "attribute" {
		return f
	}
	attr := fn.ChildByFieldName("attribute")
	if attr == nil {
		return f
	}

	switch text(attr, src) {
	case prof.EdgeCall:
		args := callArgs(n)
		if len(args) >= 2 {
			src2 := endpointName(args[0], src)
			dst := endpointName(args[1], src)
			if src2 != "" && dst != "" {
				f.Edges = append(f.Edges, Edge{Src: src2, Dst: dst})
			}
		}
	case prof.ConditionalEdgeCall:
		f.ConditionalEdges++
	case prof.CompileCall:
		f.Compiled = true
		obj := fn.ChildByFieldName("object")
		if obj != nil && obj.Type() == "identifier" &&
			f.BuilderName != "" && text(obj, src) == f.BuilderName {
			f.CompiledOnBuilder = true
		}
	}
	return f
}

// callArgs returns the named argument nodes of a call.
func callArgs(call *sitter.Node) []*sitter.Node {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, args.NamedChildCount())
	for i := 0; i < int(args.NamedChildCount()); i++ {
		out = append(out, args.NamedChild(i))
	}
	return out
}

// endpointName resolves an edge endpoint: a string literal or an
// already-bound identifier. Anything else yields "".
func endpointName(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "string":
		return strings.Trim(text(n, src), `"'`)
	case "identifier":
		return text(n, src)
	}
	return ""
}

func text(n *sitter.Node, src []byte) string {
	return string(src[n.StartByte():n.EndByte()])
}
