package goldmark

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/tensorchat"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// RenderMarkdown parses markdown source and returns ANSI-styled terminal
// output. Paragraphs, quotes and list items are word-wrapped to width;
// code blocks keep their lines.
func RenderMarkdown(source string, width int, theme tensorchat.Theme) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = defaultWidth
	}
	src := []byte(source)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	m := newMarkdown(theme, src)
	var b strings.Builder
	m.blocks(doc, width, &b)
	return strings.TrimRight(b.String(), "\n")
}

// markdown holds the styles and source of one render.
type markdown struct {
	src []byte

	bold      lipgloss.Style
	italic    lipgloss.Style
	heading   lipgloss.Style
	muted     lipgloss.Style
	link      lipgloss.Style
	code      lipgloss.Style
	quoteMark string
}

func newMarkdown(theme tensorchat.Theme, src []byte) *markdown {
	muted := lipgloss.NewStyle().Foreground(ansiColor(theme.Muted)).Faint(true)
	return &markdown{
		src:       src,
		bold:      lipgloss.NewStyle().Bold(true),
		italic:    lipgloss.NewStyle().Italic(true),
		heading:   lipgloss.NewStyle().Foreground(ansiColor(theme.Accent)).Bold(true),
		muted:     muted,
		link:      lipgloss.NewStyle().Underline(true),
		code:      lipgloss.NewStyle().Bold(true).Background(ansiColor(theme.CodeBg)),
		quoteMark: muted.Render("│") + " ",
	}
}

// blocks renders every child of node, separating siblings by a blank line.
func (m *markdown) blocks(node ast.Node, width int, b *strings.Builder) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		m.block(c, width, b)
		if c.NextSibling() != nil {
			b.WriteString("\n")
		}
	}
}

func (m *markdown) block(node ast.Node, width int, b *strings.Builder) {
	switch n := node.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		m.wrapped(m.inline(n), width, b)

	case *ast.Heading:
		m.wrapped(m.heading.Render(m.inline(n)), width, b)

	case *ast.FencedCodeBlock:
		if lang := string(n.Language(m.src)); lang != "" {
			b.WriteString(m.muted.Render(lang))
			b.WriteString("\n")
		}
		m.codeLines(n, b)

	case *ast.CodeBlock:
		m.codeLines(n, b)

	case *ast.List:
		m.list(n, width, b, 0)

	case *ast.Blockquote:
		var inner strings.Builder
		m.blocks(n, max(width-2, 10), &inner)
		for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
			b.WriteString(m.quoteMark + line + "\n")
		}

	case *ast.ThematicBreak:
		b.WriteString(m.muted.Render(strings.Repeat("─", min(width, 40))))
		b.WriteString("\n")

	case *ast.HTMLBlock:
		m.rawLines(n, b)

	default:
		m.blocks(node, width, b)
	}
}

func (m *markdown) wrapped(s string, width int, b *strings.Builder) {
	b.WriteString(lipgloss.NewStyle().Width(width).Render(s))
	b.WriteString("\n")
}

// codeLines writes the lines of a code block behind a gutter.
func (m *markdown) codeLines(n ast.Node, b *strings.Builder) {
	gutter := m.muted.Render("│") + " "
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.WriteString(gutter)
		b.WriteString(strings.TrimRight(string(seg.Value(m.src)), "\n"))
		b.WriteString("\n")
	}
}

func (m *markdown) rawLines(n ast.Node, b *strings.Builder) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(m.src))
	}
}

func (m *markdown) list(n *ast.List, width int, b *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	num := n.Start
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		item, ok := c.(*ast.ListItem)
		if !ok {
			continue
		}
		marker := "• "
		if n.IsOrdered() {
			marker = fmt.Sprintf("%d. ", num)
			num++
		}

		var pending strings.Builder
		for ic := item.FirstChild(); ic != nil; ic = ic.NextSibling() {
			switch in := ic.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				pending.WriteString(m.inline(in))
			case *ast.List:
				if pending.Len() > 0 {
					m.item(indent, marker, pending.String(), width, b)
					pending.Reset()
					marker = strings.Repeat(" ", len(marker))
				}
				m.list(in, width, b, depth+1)
			default:
				m.block(ic, width, &pending)
			}
		}
		if pending.Len() > 0 {
			m.item(indent, marker, pending.String(), width, b)
		}
	}
}

// item writes a list item, indenting continuation lines under the text.
func (m *markdown) item(indent, marker, content string, width int, b *strings.Builder) {
	prefix := indent + marker
	pad := lipgloss.Width(prefix)
	wrapped := lipgloss.NewStyle().Width(max(width-pad, 10)).Render(content)
	for i, line := range strings.Split(wrapped, "\n") {
		if i == 0 {
			b.WriteString(prefix)
		} else {
			b.WriteString(strings.Repeat(" ", pad))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
}

// inline renders the inline children of node.
func (m *markdown) inline(node ast.Node) string {
	var b strings.Builder
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		m.span(c, &b)
	}
	return b.String()
}

func (m *markdown) span(node ast.Node, b *strings.Builder) {
	switch n := node.(type) {
	case *ast.Text:
		b.Write(n.Segment.Value(m.src))
		switch {
		case n.HardLineBreak():
			b.WriteByte('\n')
		case n.SoftLineBreak():
			b.WriteByte(' ')
		}

	case *ast.String:
		b.Write(n.Value)

	case *ast.Emphasis:
		if n.Level == 1 {
			b.WriteString(m.italic.Render(m.inline(n)))
		} else {
			b.WriteString(m.bold.Render(m.inline(n)))
		}

	case *ast.CodeSpan:
		b.WriteString(m.code.Render(m.inline(n)))

	case *ast.Link:
		b.WriteString(m.link.Render(m.inline(n)))
		b.WriteString(" " + m.muted.Render("("+string(n.Destination)+")"))

	case *ast.Image:
		b.WriteString(m.link.Render(m.inline(n)))
		b.WriteString(" " + m.muted.Render("("+string(n.Destination)+")"))

	case *ast.AutoLink:
		b.WriteString(m.link.Render(string(n.URL(m.src))))

	case *ast.RawHTML:
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			b.Write(seg.Value(m.src))
		}

	default:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			m.span(c, b)
		}
	}
}
