// Package explain turns a parsed $search expression into a readable outline.
package explain

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/coffersTech/odsearch/internal/pkg/search"
)

// Markdown renders the expression tree as a nested markdown list, preceded by
// the canonical form and the positive search terms.
func Markdown(expr *search.SearchExpression) string {
	var b strings.Builder
	b.WriteString("# $search\n\n")
	if expr == nil || expr.Root == nil {
		b.WriteString("_no search expression, every entity matches_\n")
		return b.String()
	}

	b.WriteString(codeSpan(expr.String()) + "\n\n")
	writeNode(&b, expr.Root, 0)

	if terms := search.Terms(expr.Root); len(terms) > 0 {
		b.WriteString("\n**Terms:** ")
		for i, t := range terms {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(codeSpan(t))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeNode(b *strings.Builder, n search.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch n := n.(type) {
	case search.Literal:
		fmt.Fprintf(b, "%s- %s\n", indent, codeSpan(n.Text))
	case search.NotExpr:
		fmt.Fprintf(b, "%s- **NOT**\n", indent)
		writeNode(b, n.Operand, depth+1)
	case search.AndExpr:
		fmt.Fprintf(b, "%s- **AND**\n", indent)
		writeNode(b, n.Left, depth+1)
		writeNode(b, n.Right, depth+1)
	case search.OrExpr:
		fmt.Fprintf(b, "%s- **OR**\n", indent)
		writeNode(b, n.Left, depth+1)
		writeNode(b, n.Right, depth+1)
	}
}

// codeSpan wraps s in a markdown code span whose backtick fence is longer
// than any backtick run inside s.
func codeSpan(s string) string {
	longest, run := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] != '`' {
			run = 0
			continue
		}
		run++
		longest = max(longest, run)
	}
	fence := strings.Repeat("`", longest+1)
	if strings.HasPrefix(s, "`") || strings.HasSuffix(s, "`") {
		s = " " + s + " "
	}
	return fence + s + fence
}

// Renderer renders markdown for a terminal.
type Renderer struct {
	tr *glamour.TermRenderer
}

// NewRenderer creates a glamour renderer with the given standard style
// ("dark", "light", "notty", ...) wrapping at width columns.
func NewRenderer(style string, width int) (*Renderer, error) {
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	return &Renderer{tr: tr}, nil
}

// Render renders expr. A nil Renderer returns the raw markdown.
func (r *Renderer) Render(expr *search.SearchExpression) (string, error) {
	md := Markdown(expr)
	if r == nil || r.tr == nil {
		return md, nil
	}
	return r.tr.Render(md)
}
