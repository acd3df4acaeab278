package validate

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// FunctionScope is a function (or class) definition span extracted from
// a Python source file. Lines are 1-based inclusive.
type FunctionScope struct {
	Name      string
	Class     string
	StartLine int
	EndLine   int
	IsClass   bool
}

// Qualified returns the dotted name used for ground truth matching.
func (s FunctionScope) Qualified() string {
	if s.Class != "" && !s.IsClass {
		return s.Class + "." + s.Name
	}
	return s.Name
}

// functionScopes parses Python source and returns every function and
// class definition with its span. Parse errors yield nil; the caller
// treats an unparseable file as unverifiable rather than invalid.
func functionScopes(ctx context.Context, src []byte) []FunctionScope {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil
	}
	defer tree.Close()
	root := tree.RootNode()
	if root.HasError() {
		return nil
	}

	var scopes []FunctionScope
	var visit func(node *sitter.Node, class string)
	visit = func(node *sitter.Node, class string) {
		switch node.Type() {
		case "class_definition":
			name := fieldText(node, "name", src)
			scopes = append(scopes, FunctionScope{
				Name:      name,
				StartLine: int(node.StartPoint().Row) + 1,
				EndLine:   int(node.EndPoint().Row) + 1,
				IsClass:   true,
			})
			for i := 0; i < int(node.ChildCount()); i++ {
				visit(node.Child(i), name)
			}
			return
		case "function_definition":
			scopes = append(scopes, FunctionScope{
				Name:      fieldText(node, "name", src),
				Class:     class,
				StartLine: int(node.StartPoint().Row) + 1,
				EndLine:   int(node.EndPoint().Row) + 1,
			})
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			visit(node.Child(i), class)
		}
	}
	visit(root, "")
	return scopes
}

func fieldText(node *sitter.Node, field string, src []byte) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return child.Content(src)
}

// matchesFunction reports whether a ground truth function name names the
// given scope. Names match unqualified ("handler"), class-qualified
// ("Server.handler"), or with extra module segments
// ("pkg.mod.Server.handler"). A name ending in ".__init__" also matches
// the class definition itself, covering classes with implicit
// constructors.
func matchesFunction(name string, scope FunctionScope) bool {
	if scope.IsClass {
		want := scope.Name + ".__init__"
		return name == want || strings.HasSuffix(name, "."+want)
	}
	if name == scope.Name || name == scope.Qualified() {
		return true
	}
	return strings.HasSuffix(name, "."+scope.Qualified())
}
