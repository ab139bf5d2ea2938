package extract

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// markdownText flattens a markdown document into plain text by walking the
// goldmark AST. Headings, paragraphs and code blocks keep their textual
// content; link targets, emphasis markers and other syntax are dropped.
func markdownText(source []byte) (string, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var buf strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch n.(type) {
			case *ast.Heading, *ast.Paragraph, *ast.FencedCodeBlock, *ast.CodeBlock, *ast.Blockquote, *ast.ListItem:
				buf.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteString("\n")
			}
		case *ast.FencedCodeBlock:
			writeCodeLines(&buf, node, source)
		case *ast.CodeBlock:
			writeCodeLines(&buf, node, source)
		case *ast.AutoLink:
			buf.Write(node.URL(source))
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("walk markdown: %w", err)
	}

	return strings.TrimSpace(buf.String()), nil
}

// writeCodeLines copies the raw lines of a code block.
func writeCodeLines(buf *strings.Builder, n ast.Node, source []byte) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
}
