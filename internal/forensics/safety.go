package forensics

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
)

// SafetyForensics reports blacklisted calls found anywhere in a source file.
type SafetyForensics struct {
	UnsafeCalls []string `json:"unsafe_calls"`
	Safe        bool     `json:"safe"`
}

// ScanSafety flags calls matching the profile blacklist (shell execution,
// dynamic code evaluation). A missing or unparsable file scans as safe with
// no findings; callers distinguish that case by the surrounding evidence
// rationale.
func ScanSafety(ctx context.Context, path string, prof Profile) SafetyForensics {
	root, src, ok := parseFile(ctx, path)
	if !ok {
		return SafetyForensics{Safe: true}
	}

	blacklist := map[string]bool{}
	for _, name := range prof.Blacklist {
		blacklist[name] = true
	}

	calls := foldSafety(root, src, blacklist, nil)
	return SafetyForensics{UnsafeCalls: calls, Safe: len(calls) == 0}
}

// foldSafety accumulates the dotted names of blacklisted calls.
func foldSafety(n *sitter.Node, src []byte, blacklist map[string]bool, acc []string) []string {
	if n.Type() == "call" {
		if fn := n.ChildByFieldName("function"); fn != nil {
			if name := dottedName(fn, src); name != "" && blacklist[name] {
				acc = append(acc, name)
			}
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		acc = foldSafety(n.NamedChild(i), src, blacklist, acc)
	}
	return acc
}

// dottedName renders an identifier or attribute chain as "a.b.c".
func dottedName(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "identifier":
		return text(n, src)
	case "attribute":
		obj := n.ChildByFieldName("object")
		attr := n.ChildByFieldName("attribute")
		if obj == nil || attr == nil {
			return ""
		}
		base := dottedName(obj, src)
		if base == "" {
			return ""
		}
		return base + "." + text(attr, src)
	}
	return ""
}
