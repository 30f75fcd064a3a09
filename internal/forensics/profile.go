// Package forensics performs static structural analysis of a candidate task
// graph implementation. It parses Python sources with tree-sitter and folds
// the syntax tree into immutable result records: graph topology, reducer
// declarations, and a safety profile. Missing or unparsable files yield
// zero-value results, never errors; callers encode absence as negative
// evidence.
package forensics

// Profile names the syntactic shapes the verifier extracts. The zero value
// is not useful; start from LangGraphProfile.
type Profile struct {
	// BuilderType is the call that instantiates the graph builder.
	BuilderType string
	// EdgeCall registers an unconditional edge: EdgeCall(src, dst).
	EdgeCall string
	// ConditionalEdgeCall registers a router-based edge.
	ConditionalEdgeCall string
	// CompileCall finalizes the builder. Compilation is only credited when
	// invoked on the identifier the builder was bound to.
	CompileCall string
	// StartName is the designated start node; fan-out is its out-degree.
	StartName string
	// AnnotationType marks a reducer-bearing state field declaration.
	AnnotationType string
	// ReducerNames are the merge-function attributes counted as reducers.
	ReducerNames []string
	// Blacklist lists dotted call names flagged by the safety scan.
	Blacklist []string
}

// LangGraphProfile extracts the LangGraph builder dialect.
func LangGraphProfile() Profile {
	return Profile{
		BuilderType:         "StateGraph",
		EdgeCall:            "add_edge",
		ConditionalEdgeCall: "add_conditional_edges",
		CompileCall:         "compile",
		StartName:           "START",
		AnnotationType:      "Annotated",
		ReducerNames:        []string{"add", "ior"},
		Blacklist:           []string{"os.system", "eval", "exec", "subprocess.call"},
	}
}
