package fts

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Sections is a Markdown source split into the three indexed fields.
type Sections struct {
	Headings string
	Body     string
	Code     string
}

// ExtractSections walks the Markdown AST and buckets text into headings,
// code (blocks and spans) and everything else.
func ExtractSections(source string) Sections {
	src := []byte(source)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var headings, body, code []string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if t := textOf(node, src); t != "" {
				headings = append(headings, t)
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			if t := blockLines(node, src); t != "" {
				code = append(code, t)
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			if t := blockLines(node, src); t != "" {
				code = append(code, t)
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan:
			if t := textOf(node, src); t != "" {
				code = append(code, t)
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if t := string(node.Segment.Value(src)); t != "" {
				body = append(body, t)
			}
		}
		return ast.WalkContinue, nil
	})

	return Sections{
		Headings: strings.Join(headings, "\n"),
		Body:     strings.Join(body, " "),
		Code:     strings.Join(code, "\n"),
	}
}

func textOf(n ast.Node, src []byte) string {
	var buf strings.Builder
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(src))
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}

func blockLines(n ast.Node, src []byte) string {
	lines := n.Lines()
	parts := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		parts = append(parts, strings.TrimRight(string(seg.Value(src)), "\n"))
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
