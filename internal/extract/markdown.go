package extract

import (
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

func init() {
	register("md", extractMarkdown)
}

// extractMarkdown drops markup and keeps one block per line. Headings stay in
// the text so chunks carry their section names.
func extractMarkdown(ctx context.Context, data []byte) (*Result, error) {
	source := []byte(cleanText(string(data)))
	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	var blocks []string
	headings := 0
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if _, ok := node.(*ast.Heading); ok {
			headings++
		}
		if code, ok := node.(*ast.FencedCodeBlock); ok {
			var sb strings.Builder
			for i := 0; i < code.Lines().Len(); i++ {
				line := code.Lines().At(i)
				sb.Write(line.Value(source))
			}
			blocks = append(blocks, strings.TrimSpace(sb.String()))
			continue
		}
		if txt := blockText(node, source); txt != "" {
			blocks = append(blocks, txt)
		}
	}
	return &Result{
		Text:     strings.Join(blocks, "\n\n"),
		Metadata: map[string]interface{}{"headings": headings},
	}, nil
}

func blockText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteString("\n")
			}
		case *ast.String:
			sb.Write(t.Value)
		case *ast.CodeBlock:
			for i := 0; i < t.Lines().Len(); i++ {
				line := t.Lines().At(i)
				sb.Write(line.Value(source))
			}
			return ast.WalkSkipChildren, nil
		}
		if node.Kind() == ast.KindListItem && sb.Len() > 0 {
			sb.WriteString("\n")
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
