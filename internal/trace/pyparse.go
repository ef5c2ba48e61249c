package trace

import (
	"regexp"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

var pythonLanguage = sitter.NewLanguage(python.Language())

// pySymbol is one extracted function/method/class, pre-node-id.
type pySymbol struct {
	kind       string // function | async_function | method | async_method | class
	name       string
	qualname   string
	startLine  int
	endLine    int
	decorators []string
	docstring  string
}

// pyImport is one extracted import reference.
type pyImport struct {
	module   string // dotted module name, without leading dots
	level    int    // 0 for absolute, >=1 for relative ("from . import x" -> 1)
	line     int
	relative bool
}

// parsePython parses Python source with tree-sitter and extracts
// top-level/nested-one-level symbols and all import statements, mirroring
// core/trace.py's PythonAnalyzer.
func parsePython(source []byte) (symbols []pySymbol, imports []pyImport, err error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(pythonLanguage)

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, nil, errSyntax("failed to parse python source")
	}
	defer tree.Close()

	root := tree.RootNode()
	symbols = extractTopLevelSymbols(root, source, "")
	imports = extractImports(root, source)
	return symbols, imports, nil
}

type syntaxErr struct{ msg string }

func (e *syntaxErr) Error() string { return e.msg }
func errSyntax(msg string) error   { return &syntaxErr{msg} }

func nodeText(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	return string(source[n.StartByte():n.EndByte()])
}

func isAsync(fn *sitter.Node) bool {
	for i := uint(0); i < fn.ChildCount(); i++ {
		c := fn.Child(i)
		if c != nil && c.Kind() == "async" {
			return true
		}
	}
	return false
}

// unwrapDecorated returns (decoratorNames, innerDefinitionNode) for a
// decorated_definition node, or (nil, node) if node is not decorated.
func unwrapDecorated(node *sitter.Node, source []byte) ([]string, *sitter.Node) {
	if node.Kind() != "decorated_definition" {
		return nil, node
	}
	var decorators []string
	var inner *sitter.Node
	for i := uint(0); i < node.ChildCount(); i++ {
		c := node.Child(i)
		if c == nil {
			continue
		}
		switch c.Kind() {
		case "decorator":
			decorators = append(decorators, decoratorName(c, source))
		case "function_definition", "class_definition":
			inner = c
		}
	}
	return decorators, inner
}

func decoratorName(dec *sitter.Node, source []byte) string {
	text := nodeText(dec, source)
	text = strings.TrimPrefix(text, "@")
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, "(\n"); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

func docstringOf(defNode *sitter.Node, source []byte) string {
	body := defNode.ChildByFieldName("body")
	if body == nil || body.ChildCount() == 0 {
		return ""
	}
	first := body.Child(0)
	if first == nil || first.Kind() != "expression_statement" {
		return ""
	}
	if first.ChildCount() == 0 {
		return ""
	}
	strNode := first.Child(0)
	if strNode == nil || strNode.Kind() != "string" {
		return ""
	}
	return stripPythonString(nodeText(strNode, source))
}

var pyStringQuoteRe = regexp.MustCompile(`^[a-zA-Z]*("""|'''|"|')`)

func stripPythonString(raw string) string {
	m := pyStringQuoteRe.FindString(raw)
	if m == "" {
		return strings.TrimSpace(raw)
	}
	quote := m[len(m)-len(strings.TrimLeft(m, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")):]
	body := raw
	if idx := strings.Index(raw, quote); idx >= 0 {
		body = raw[idx+len(quote):]
	}
	body = strings.TrimSuffix(body, quote)
	return strings.TrimSpace(body)
}

func capDocstring(s string) string {
	if len(s) > 500 {
		return s[:497] + "..."
	}
	return s
}

// extractTopLevelSymbols walks node's direct children (module body, or a
// class body one level deep) for function/async-function/class
// definitions, recursing into classes exactly one level for methods, per
// spec.md §4.5 step 3.
func extractTopLevelSymbols(node *sitter.Node, source []byte, parentQualname string) []pySymbol {
	var out []pySymbol
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}

		decorators, defNode := unwrapDecorated(child, source)
		kind := child.Kind()
		if defNode != nil {
			kind = defNode.Kind()
		} else {
			defNode = child
		}

		switch kind {
		case "function_definition":
			out = append(out, symbolFromFunction(defNode, source, parentQualname, decorators))
		case "class_definition":
			out = append(out, symbolFromClass(defNode, source, decorators))
			body := defNode.ChildByFieldName("body")
			if body != nil {
				nameNode := defNode.ChildByFieldName("name")
				className := nodeText(nameNode, source)
				out = append(out, extractClassMethods(body, source, className)...)
			}
		}
	}
	return out
}

// extractClassMethods extracts only function_definition/decorated
// children of a class body — one level, no further nesting.
func extractClassMethods(body *sitter.Node, source []byte, className string) []pySymbol {
	var out []pySymbol
	for i := uint(0); i < body.ChildCount(); i++ {
		child := body.Child(i)
		if child == nil {
			continue
		}
		decorators, defNode := unwrapDecorated(child, source)
		kind := child.Kind()
		if defNode != nil {
			kind = defNode.Kind()
		} else {
			defNode = child
		}
		if kind == "function_definition" {
			out = append(out, symbolFromFunction(defNode, source, className, decorators))
		}
	}
	return out
}

func symbolFromFunction(fn *sitter.Node, source []byte, parentQualname string, decorators []string) pySymbol {
	nameNode := fn.ChildByFieldName("name")
	name := nodeText(nameNode, source)
	qualname := name
	kind := "function"
	if parentQualname != "" {
		qualname = parentQualname + "." + name
		kind = "method"
	}
	if isAsync(fn) {
		if kind == "method" {
			kind = "async_method"
		} else {
			kind = "async_function"
		}
	}
	return pySymbol{
		kind:       kind,
		name:       name,
		qualname:   qualname,
		startLine:  int(fn.StartPosition().Row) + 1,
		endLine:    int(fn.EndPosition().Row) + 1,
		decorators: decorators,
		docstring:  capDocstring(docstringOf(fn, source)),
	}
}

func symbolFromClass(cls *sitter.Node, source []byte, decorators []string) pySymbol {
	nameNode := cls.ChildByFieldName("name")
	name := nodeText(nameNode, source)
	return pySymbol{
		kind:       "class",
		name:       name,
		qualname:   name,
		startLine:  int(cls.StartPosition().Row) + 1,
		endLine:    int(cls.EndPosition().Row) + 1,
		decorators: decorators,
		docstring:  capDocstring(docstringOf(cls, source)),
	}
}

var (
	importRe     = regexp.MustCompile(`^\s*import\s+(.+)$`)
	fromImportRe = regexp.MustCompile(`^\s*from\s+(\.*)(\S*)\s+import\s+`)
)

// extractImports walks the whole tree (not just top-level, matching
// ast.walk in core/trace.py) for import_statement and import_from_statement
// nodes, decoding their exact syntax from the node's own source text.
func extractImports(root *sitter.Node, source []byte) []pyImport {
	var out []pyImport
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch n.Kind() {
		case "import_statement":
			out = append(out, parseImportStatement(nodeText(n, source), int(n.StartPosition().Row)+1)...)
			return
		case "import_from_statement":
			if imp, ok := parseImportFromStatement(nodeText(n, source), int(n.StartPosition().Row)+1); ok {
				out = append(out, imp)
			}
			return
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return out
}

func parseImportStatement(text string, line int) []pyImport {
	m := importRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	var out []pyImport
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, " as "); idx >= 0 {
			part = part[:idx]
		}
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, pyImport{module: part, line: line})
	}
	return out
}

func parseImportFromStatement(text string, line int) (pyImport, bool) {
	m := fromImportRe.FindStringSubmatch(text)
	if m == nil {
		return pyImport{}, false
	}
	dots := m[1]
	module := m[2]
	if dots == "" {
		return pyImport{module: module, line: line}, true
	}
	return pyImport{module: module, level: len(dots), line: line, relative: true}, true
}
