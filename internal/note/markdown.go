package note

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// md is a shared parser; goldmark parsers are safe for concurrent use.
var md = goldmark.New()

// DeriveTitle returns a title for a note whose title is empty: the text of
// the first heading in the markdown content, or the first non-empty line,
// truncated to maxLen runes.
func DeriveTitle(content string, maxLen int) string {
	source := []byte(content)
	doc := md.Parser().Parse(text.NewReader(source))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if _, ok := n.(*ast.Heading); ok {
			title = strings.TrimSpace(string(nodeText(n, source)))
			if title != "" {
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})

	if title == "" {
		for _, line := range strings.Split(content, "\n") {
			line = strings.TrimSpace(strings.TrimLeft(line, "#>-* "))
			if line != "" {
				title = line
				break
			}
		}
	}

	return truncateRunes(title, maxLen)
}

// PlainText flattens markdown content to its text segments, one line per
// block. Used for content fingerprinting so formatting-only equivalence is
// judged on the same representation everywhere.
func PlainText(content string) string {
	source := []byte(content)
	doc := md.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *ast.Heading, *ast.Paragraph, *ast.ListItem, *ast.Blockquote:
			line := strings.TrimSpace(string(nodeText(n, source)))
			if line != "" {
				if b.Len() > 0 {
					b.WriteByte('\n')
				}
				b.WriteString(line)
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			line := strings.TrimRight(string(blockLines(n, source)), "\n")
			if line != "" {
				if b.Len() > 0 {
					b.WriteByte('\n')
				}
				b.WriteString(line)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

// nodeText collects the raw text segments under a node.
func nodeText(n ast.Node, source []byte) []byte {
	var out []byte
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := c.(*ast.Text); ok {
			out = append(out, t.Segment.Value(source)...)
		}
		return ast.WalkContinue, nil
	})
	return out
}

// blockLines collects the literal lines of a code block.
func blockLines(n ast.Node, source []byte) []byte {
	var out []byte
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		out = append(out, seg.Value(source)...)
	}
	return out
}

// truncateRunes truncates s to n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
