// Package codecheck statically validates fenced code snippets. Exactly two
// languages get real analysis, Python and JavaScript, matching the runnable
// set downstream consumers execute; every other tag is "not checkable",
// which is not the same as "valid".
package codecheck

import (
	"fmt"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// Diagnostic pinpoints the first syntax problem in a snippet.
// Line and Column are 1-based.
type Diagnostic struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Summary string `json:"summary"`
}

func (d *Diagnostic) String() string {
	return fmt.Sprintf("line %d, column %d: %s", d.Line, d.Column, d.Summary)
}

// aliases maps accepted language tags to their canonical language.
var aliases = map[string]string{
	"python":     "python",
	"py":         "python",
	"javascript": "javascript",
	"js":         "javascript",
}

// Normalize lowercases a fence tag and resolves aliases. It returns the
// canonical language name, or "" for tags outside the runnable set.
func Normalize(tag string) string {
	return aliases[strings.ToLower(tag)]
}

// Runnable reports whether a fence tag is on the fixed allow-list of
// languages the rendering layer treats as runnable.
func Runnable(tag string) bool {
	return Normalize(tag) != ""
}

// Checker parses snippets with tree-sitter grammars. A new parser is created
// per Check call, so a single Checker is safe for concurrent use. Checking
// is pure: no side effects, and identical input yields identical output.
type Checker struct {
	languages map[string]*tree_sitter.Language
}

// New creates a Checker with the Python and JavaScript grammars registered.
// JavaScript is parsed with the TypeScript grammar, a syntactic superset
// that flags the same structural breakage.
func New() *Checker {
	return &Checker{
		languages: map[string]*tree_sitter.Language{
			"python":     tree_sitter.NewLanguage(tree_sitter_python.Language()),
			"javascript": tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()),
		},
	}
}

// Supports reports whether real analysis exists for the given fence tag.
func (c *Checker) Supports(tag string) bool {
	_, ok := c.languages[Normalize(tag)]
	return ok
}

// Check validates a snippet. It returns a Diagnostic for the first syntax
// problem, (nil, nil) when the snippet parses cleanly OR the tag is not
// checkable, and an error only when the parser itself malfunctions.
func (c *Checker) Check(tag, code string) (*Diagnostic, error) {
	lang, ok := c.languages[Normalize(tag)]
	if !ok {
		return nil, nil
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("codecheck: set language %s: %w", Normalize(tag), err)
	}

	source := []byte(code)
	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("codecheck: parser returned nil tree for %s", Normalize(tag))
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil, nil
	}

	bad := firstErrorNode(root)
	if bad == nil {
		// The root reports an error without an ERROR/MISSING node below it.
		bad = root
	}
	return describe(bad, source), nil
}

// firstErrorNode finds the first ERROR or MISSING node in document order,
// descending only into subtrees that contain one.
func firstErrorNode(node *tree_sitter.Node) *tree_sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil || !child.HasError() {
			continue
		}
		if found := firstErrorNode(child); found != nil {
			return found
		}
	}
	return nil
}

// describe turns an offending node into a Diagnostic.
func describe(node *tree_sitter.Node, source []byte) *Diagnostic {
	pos := node.StartPosition()
	d := &Diagnostic{
		Line:   int(pos.Row) + 1,
		Column: int(pos.Column) + 1,
	}

	if node.IsMissing() {
		d.Summary = fmt.Sprintf("missing %s", node.Kind())
		return d
	}

	d.Summary = "syntax error"
	if snippet := excerpt(node.Utf8Text(source)); snippet != "" {
		d.Summary = fmt.Sprintf("syntax error near %q", snippet)
	}
	return d
}

// excerpt compresses node text to a single short line for the summary.
func excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	const max = 40
	if len(text) > max {
		text = text[:max] + "..."
	}
	return text
}
