package parser

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/starford/robotdb/internal/models"
)

var pythonLanguage = sitter.NewLanguage(tree_sitter_python.Language())

// pySource is a Python module parsed with tree-sitter. Close releases the
// syntax tree.
type pySource struct {
	tree *sitter.Tree
	src  []byte
}

func parsePython(data []byte) (*pySource, error) {
	p := sitter.NewParser()
	defer p.Close()
	if err := p.SetLanguage(pythonLanguage); err != nil {
		return nil, fmt.Errorf("python grammar: %w", err)
	}
	tree := p.Parse(data, nil)
	if tree == nil {
		return nil, errors.New("python parse failed")
	}
	return &pySource{tree: tree, src: data}, nil
}

func (s *pySource) Close() {
	s.tree.Close()
}

func (s *pySource) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Utf8Text(s.src)
}

// stringValue returns the content of a string literal without its prefix
// and quotes.
func (s *pySource) stringValue(n *sitter.Node) string {
	var b strings.Builder
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if c := n.NamedChild(i); c.Kind() == "string_content" {
			b.WriteString(s.text(c))
		}
	}
	return b.String()
}

// unwrapDecorated returns the definition of a decorated_definition and its
// decorators. Other nodes are returned unchanged.
func unwrapDecorated(n *sitter.Node) (*sitter.Node, []*sitter.Node) {
	if n.Kind() != "decorated_definition" {
		return n, nil
	}
	var decorators []*sitter.Node
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if c := n.NamedChild(i); c.Kind() == "decorator" {
			decorators = append(decorators, c)
		}
	}
	return n.ChildByFieldName("definition"), decorators
}

// pythonKeywords extracts keywords from a Python library module without
// executing it. When the module defines a class named after the module, its
// public methods are the keywords; otherwise the public module-level
// functions are.
func pythonKeywords(module string, data []byte) ([]models.Keyword, error) {
	src, err := parsePython(data)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	body := src.tree.RootNode()
	for i := uint(0); i < body.NamedChildCount(); i++ {
		def, _ := unwrapDecorated(body.NamedChild(i))
		if def == nil || def.Kind() != "class_definition" {
			continue
		}
		if src.text(def.ChildByFieldName("name")) == module {
			if b := def.ChildByFieldName("body"); b != nil {
				body = b
			}
			break
		}
	}

	var out []models.Keyword
	for i := uint(0); i < body.NamedChildCount(); i++ {
		def, decorators := unwrapDecorated(body.NamedChild(i))
		if def == nil || def.Kind() != "function_definition" {
			continue
		}
		name := src.text(def.ChildByFieldName("name"))
		if name == "" || strings.HasPrefix(name, "_") {
			continue
		}
		kw := models.Keyword{
			Name:          keywordName(name),
			Arguments:     src.arguments(def.ChildByFieldName("parameters")),
			Documentation: src.docstring(def.ChildByFieldName("body")),
			Tags:          []string{},
		}
		if !src.applyDecorators(&kw, decorators) {
			continue
		}
		out = append(out, kw)
	}
	return out, nil
}

// arguments formats a parameter list the way libdoc shows it: "name",
// "name=default", "*args", "**kwargs". self/cls, annotations and the bare
// "*" and "/" markers are dropped.
func (s *pySource) arguments(params *sitter.Node) []string {
	out := []string{}
	if params == nil {
		return out
	}
	for i := uint(0); i < params.NamedChildCount(); i++ {
		arg := s.argument(params.NamedChild(i))
		if arg == "" || arg == "self" || arg == "cls" {
			continue
		}
		out = append(out, arg)
	}
	return out
}

func (s *pySource) argument(n *sitter.Node) string {
	switch n.Kind() {
	case "identifier", "list_splat_pattern", "dictionary_splat_pattern":
		return s.text(n)
	case "typed_parameter":
		if c := n.NamedChild(0); c != nil {
			return s.argument(c)
		}
	case "default_parameter", "typed_default_parameter":
		return s.text(n.ChildByFieldName("name")) + "=" + s.text(n.ChildByFieldName("value"))
	}
	return ""
}

// docstring returns the dedented docstring opening a function body.
func (s *pySource) docstring(body *sitter.Node) string {
	if body == nil {
		return ""
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		stmt := body.NamedChild(i)
		if stmt.Kind() == "comment" {
			continue
		}
		if stmt.Kind() != "expression_statement" || stmt.NamedChildCount() == 0 {
			return ""
		}
		if str := stmt.NamedChild(0); str.Kind() == "string" {
			return dedentDoc(strings.Split(s.stringValue(str), "\n"))
		}
		return ""
	}
	return ""
}

func dedentDoc(lines []string) string {
	min := -1
	for i, l := range lines {
		if i == 0 || strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if min < 0 || n < min {
			min = n
		}
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		if i > 0 && min > 0 && len(l) >= min {
			l = l[min:]
		}
		out[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// applyDecorators reads @keyword and @not_keyword, in plain, called and
// dotted form. It reports false for functions that are not keywords.
func (s *pySource) applyDecorators(kw *models.Keyword, decorators []*sitter.Node) bool {
	for _, d := range decorators {
		expr := d.NamedChild(0)
		if expr == nil {
			continue
		}
		var args *sitter.Node
		if expr.Kind() == "call" {
			args = expr.ChildByFieldName("arguments")
			expr = expr.ChildByFieldName("function")
		}
		name := s.text(expr)
		switch name[strings.LastIndexByte(name, '.')+1:] {
		case "not_keyword":
			return false
		case "keyword":
			s.keywordDecorator(kw, args)
		}
	}
	return true
}

func (s *pySource) keywordDecorator(kw *models.Keyword, args *sitter.Node) {
	if args == nil {
		return
	}
	positional := 0
	for i := uint(0); i < args.NamedChildCount(); i++ {
		a := args.NamedChild(i)
		switch a.Kind() {
		case "comment":
		case "keyword_argument":
			value := a.ChildByFieldName("value")
			if value == nil {
				continue
			}
			switch s.text(a.ChildByFieldName("name")) {
			case "name":
				if value.Kind() == "string" {
					kw.Name = s.stringValue(value)
				}
			case "tags":
				kw.Tags = s.stringList(value)
			}
		case "string":
			if positional == 0 {
				if name := s.stringValue(a); name != "" {
					kw.Name = name
				}
			}
			positional++
		default:
			positional++
		}
	}
}

func (s *pySource) stringList(n *sitter.Node) []string {
	out := []string{}
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if c := n.NamedChild(i); c.Kind() == "string" {
			out = append(out, s.stringValue(c))
		}
	}
	return out
}

// keywordName turns a Python function name into the libdoc display name:
// "open_browser" -> "Open Browser".
func keywordName(fn string) string {
	parts := strings.Split(fn, "_")
	out := parts[:0]
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, strings.ToUpper(p[:1])+p[1:])
	}
	return strings.Join(out, " ")
}

// pythonVariables returns the variable names a Python variable file
// defines at module level, including assignments nested in top-level
// if, try and with blocks. The second result reports whether the module
// defines get_variables, whose result cannot be known statically.
func pythonVariables(data []byte) ([]string, bool, error) {
	src, err := parsePython(data)
	if err != nil {
		return nil, false, err
	}
	defer src.Close()

	v := &pyVariables{src: src, seen: make(map[string]struct{})}
	v.block(src.tree.RootNode())

	names := make([]string, 0, len(v.seen))
	for name := range v.seen {
		if strings.HasPrefix(name, "_") {
			continue
		}
		names = append(names, variableFileName(name))
	}
	sort.Strings(names)
	return names, v.dynamic, nil
}

type pyVariables struct {
	src     *pySource
	seen    map[string]struct{}
	dynamic bool
}

func (v *pyVariables) block(n *sitter.Node) {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		switch c.Kind() {
		case "expression_statement":
			for j := uint(0); j < c.NamedChildCount(); j++ {
				if a := c.NamedChild(j); a.Kind() == "assignment" {
					v.assignment(a)
				}
			}
		case "function_definition", "decorated_definition":
			def, _ := unwrapDecorated(c)
			if def == nil {
				continue
			}
			switch v.src.text(def.ChildByFieldName("name")) {
			case "get_variables", "getVariables":
				v.dynamic = true
			}
		case "if_statement", "elif_clause", "else_clause",
			"try_statement", "except_clause", "except_group_clause", "finally_clause",
			"with_statement", "block":
			v.block(c)
		}
	}
}

// assignment records the targets of a = b = c chains. Annotations without
// a value define nothing.
func (v *pyVariables) assignment(a *sitter.Node) {
	right := a.ChildByFieldName("right")
	if right == nil {
		return
	}
	v.target(a.ChildByFieldName("left"))
	if right.Kind() == "assignment" {
		v.assignment(right)
	}
}

func (v *pyVariables) target(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Kind() {
	case "identifier":
		v.seen[v.src.text(n)] = struct{}{}
	case "pattern_list", "tuple_pattern", "list_pattern", "list_splat_pattern":
		for i := uint(0); i < n.NamedChildCount(); i++ {
			v.target(n.NamedChild(i))
		}
	}
}

// variableFileName applies the LIST__ and DICT__ prefixes of Robot
// Framework variable files.
func variableFileName(attr string) string {
	switch {
	case strings.HasPrefix(attr, "LIST__"):
		return "@{" + strings.TrimPrefix(attr, "LIST__") + "}"
	case strings.HasPrefix(attr, "DICT__"):
		return "&{" + strings.TrimPrefix(attr, "DICT__") + "}"
	}
	return "${" + attr + "}"
}
