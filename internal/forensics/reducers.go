package forensics

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
)

// ReducerForensics reports whether a state-declaration file registers
// reducer annotations, and which merge functions it names.
type ReducerForensics struct {
	AnnotatedFound bool     `json:"annotated_found"`
	Reducers       []string `json:"reducers"`
	// Robust is true when the declarations reference at least two distinct
	// reducer kinds, confirming both key-wise-union and append semantics are
	// exercised.
	Robust bool `json:"robust"`
}

// VerifyReducers parses a state-declaration file and checks its merge-policy
// annotations. A missing file or parse failure returns the zero value.
func VerifyReducers(ctx context.Context, path string, prof Profile) ReducerForensics {
	root, src, ok := parseFile(ctx, path)
	if !ok {
		return ReducerForensics{}
	}

	f := foldReducers(root, src, prof, ReducerForensics{})

	distinct := map[string]bool{}
	for _, r := range f.Reducers {
		distinct[r] = true
	}
	f.Robust = f.AnnotatedFound && len(distinct) >= 2
	return f
}

// foldReducers walks the tree looking for field declarations carrying the
// annotation type. Both the annotation (after the colon) and the assigned
// value (type-alias style) are inspected.
func foldReducers(n *sitter.Node, src []byte, prof Profile, f ReducerForensics) ReducerForensics {
	if n.Type() == "assignment" {
		if typ := n.ChildByFieldName("type"); typ != nil {
			f = foldAnnotation(typ, src, prof, f)
		}
		if right := n.ChildByFieldName("right"); right != nil {
			f = foldAnnotation(right, src, prof, f)
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		f = foldReducers(n.NamedChild(i), src, prof, f)
	}
	return f
}

// foldAnnotation searches a subtree for the annotation type applied to
// parameters. In annotation position the grammar yields a generic_type whose
// head identifier is the annotation name; in value position it yields a
// subscript. Reducer names found inside the parameter list are recorded.
func foldAnnotation(n *sitter.Node, src []byte, prof Profile, f ReducerForensics) ReducerForensics {
	switch n.Type() {
	case "generic_type":
		if head := n.NamedChild(0); head != nil &&
			head.Type() == "identifier" && text(head, src) == prof.AnnotationType {
			f.AnnotatedFound = true
			f.Reducers = append(f.Reducers, collectReducerAttrs(n, src, prof)...)
			return f
		}
	case "subscript":
		if v := n.ChildByFieldName("value"); v != nil &&
			v.Type() == "identifier" && text(v, src) == prof.AnnotationType {
			f.AnnotatedFound = true
			f.Reducers = append(f.Reducers, collectReducerAttrs(n, src, prof)...)
			return f
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		f = foldAnnotation(n.NamedChild(i), src, prof, f)
	}
	return f
}

// collectReducerAttrs gathers dotted accesses (e.g. operator.ior) whose final
// component is a known reducer. The grammar renders them as attribute nodes
// in expression context and member_type nodes in type context.
func collectReducerAttrs(n *sitter.Node, src []byte, prof Profile) []string {
	var out []string
	name := ""
	switch n.Type() {
	case "attribute":
		if attr := n.ChildByFieldName("attribute"); attr != nil {
			name = text(attr, src)
		}
	case "member_type":
		if count := int(n.NamedChildCount()); count > 0 {
			if last := n.NamedChild(count - 1); last != nil && last.Type() == "identifier" {
				name = text(last, src)
			}
		}
	}
	if name != "" {
		for _, known := range prof.ReducerNames {
			if name == known {
				out = append(out, name)
			}
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, collectReducerAttrs(n.NamedChild(i), src, prof)...)
	}
	return out
}
