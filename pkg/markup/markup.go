// Package markup renders assistant markdown as the HTML subset
// Telegram accepts: b, i, s, code, pre, a, blockquote. Everything
// else degrades to escaped text. Telegram rejects messages containing
// unknown tags, so the renderer never emits any.
package markup

import (
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// parserInstance is initialized once and reused. The goldmark Parser
// is safe to share; per-call state lives in the reader.
var (
	parserInstance goldmark.Markdown
	parserOnce     sync.Once
)

func getParser() goldmark.Markdown {
	parserOnce.Do(func() {
		parserInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return parserInstance
}

// ToTelegramHTML renders markdown as Telegram HTML. Any rendering
// failure falls back to the escaped plain text, so the caller always
// gets something sendable.
func ToTelegramHTML(input string) (out string) {
	defer func() {
		if recover() != nil {
			out = html.EscapeString(input)
		}
	}()

	source := []byte(input)
	document := getParser().Parser().Parse(text.NewReader(source))

	r := &telegramRenderer{source: source}
	if err := ast.Walk(document, r.walk); err != nil {
		return html.EscapeString(input)
	}
	return strings.TrimSpace(r.out.String())
}

// telegramRenderer walks a goldmark AST and emits Telegram HTML. A
// direct ast.Walk fits better than goldmark's renderer interface:
// Telegram's tag set is flat and block layout is just blank lines.
type telegramRenderer struct {
	source []byte
	out    strings.Builder

	// trailingNewlines tracks output tail state for block spacing.
	trailingNewlines int

	// listStack holds counters for (possibly nested) lists.
	listStack []listState
}

type listState struct {
	ordered bool
	counter int
}

func (r *telegramRenderer) write(s string) {
	if s == "" {
		return
	}
	r.out.WriteString(s)

	trailing := 0
	allNewlines := true
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != '\n' {
			allNewlines = false
			break
		}
		trailing++
	}
	if allNewlines {
		r.trailingNewlines += trailing
	} else {
		r.trailingNewlines = trailing
	}
}

func (r *telegramRenderer) ensureNewline() {
	if r.out.Len() > 0 && r.trailingNewlines < 1 {
		r.write("\n")
	}
}

func (r *telegramRenderer) ensureBlankLine() {
	if r.out.Len() == 0 {
		return
	}
	for r.trailingNewlines < 2 {
		r.write("\n")
	}
}

func (r *telegramRenderer) inList() bool { return len(r.listStack) > 0 }

func (r *telegramRenderer) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node.Kind() {

	// Block nodes.
	case ast.KindDocument:

	case ast.KindParagraph, ast.KindTextBlock:
		if !entering {
			if r.inList() {
				r.ensureNewline()
			} else {
				r.ensureBlankLine()
			}
		}

	case ast.KindHeading:
		if entering {
			r.ensureBlankLine()
			r.write("<b>")
		} else {
			r.write("</b>")
			r.ensureBlankLine()
		}

	case ast.KindFencedCodeBlock:
		if entering {
			n := node.(*ast.FencedCodeBlock)
			r.renderCodeBlock(collectLines(n, r.source), string(n.Language(r.source)))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindCodeBlock:
		if entering {
			r.renderCodeBlock(collectLines(node, r.source), "")
			return ast.WalkSkipChildren, nil
		}

	case ast.KindBlockquote:
		if entering {
			r.ensureBlankLine()
			r.write("<blockquote>")
		} else {
			r.trimTrailingNewlines()
			r.write("</blockquote>")
			r.ensureBlankLine()
		}

	case ast.KindList:
		if entering {
			n := node.(*ast.List)
			start := 0
			if n.IsOrdered() {
				start = n.Start
			}
			if !r.inList() {
				r.ensureBlankLine()
			}
			r.listStack = append(r.listStack, listState{ordered: n.IsOrdered(), counter: start})
		} else {
			r.listStack = r.listStack[:len(r.listStack)-1]
			if !r.inList() {
				r.ensureBlankLine()
			}
		}

	case ast.KindListItem:
		if entering {
			r.ensureNewline()
			r.write(r.bullet())
		}

	case ast.KindThematicBreak:
		if entering {
			r.ensureBlankLine()
		}

	case ast.KindHTMLBlock:
		if entering {
			r.write(html.EscapeString(string(collectLines(node, r.source))))
			r.ensureBlankLine()
			return ast.WalkSkipChildren, nil
		}

	// Inline nodes.
	case ast.KindText:
		if entering {
			n := node.(*ast.Text)
			r.write(html.EscapeString(string(n.Segment.Value(r.source))))
			if n.SoftLineBreak() || n.HardLineBreak() {
				r.write("\n")
			}
		}

	case ast.KindString:
		if entering {
			r.write(html.EscapeString(string(node.(*ast.String).Value)))
		}

	case ast.KindEmphasis:
		tag := "i"
		if node.(*ast.Emphasis).Level >= 2 {
			tag = "b"
		}
		if entering {
			r.write("<" + tag + ">")
		} else {
			r.write("</" + tag + ">")
		}

	case ast.KindCodeSpan:
		if entering {
			r.write("<code>" + html.EscapeString(collectInlineCode(node, r.source)) + "</code>")
			return ast.WalkSkipChildren, nil
		}

	case ast.KindLink:
		if entering {
			n := node.(*ast.Link)
			r.write(`<a href="` + html.EscapeString(string(n.Destination)) + `">`)
		} else {
			r.write("</a>")
		}

	case ast.KindAutoLink:
		if entering {
			url := html.EscapeString(string(node.(*ast.AutoLink).URL(r.source)))
			r.write(`<a href="` + url + `">` + url + "</a>")
		}

	case ast.KindImage:
		if entering {
			n := node.(*ast.Image)
			r.write(html.EscapeString(string(n.Text(r.source))) +
				" (" + html.EscapeString(string(n.Destination)) + ")")
			return ast.WalkSkipChildren, nil
		}

	case ast.KindRawHTML:
		if entering {
			n := node.(*ast.RawHTML)
			var raw strings.Builder
			for i := 0; i < n.Segments.Len(); i++ {
				seg := n.Segments.At(i)
				raw.Write(seg.Value(r.source))
			}
			r.write(html.EscapeString(raw.String()))
		}

	// GFM extension nodes.
	case extast.KindStrikethrough:
		if entering {
			r.write("<s>")
		} else {
			r.write("</s>")
		}

	case extast.KindTable:
		if entering {
			r.renderTable(node)
			return ast.WalkSkipChildren, nil
		}

	case extast.KindTaskCheckBox:
		if entering {
			if node.(*extast.TaskCheckBox).IsChecked {
				r.write("[x] ")
			} else {
				r.write("[ ] ")
			}
		}
	}

	return ast.WalkContinue, nil
}

// bullet produces the marker for the current list item, indented two
// spaces per nesting level.
func (r *telegramRenderer) bullet() string {
	indent := strings.Repeat("  ", len(r.listStack)-1)
	top := &r.listStack[len(r.listStack)-1]
	if top.ordered {
		marker := fmt.Sprintf("%s%d. ", indent, top.counter)
		top.counter++
		return marker
	}
	return indent + "• "
}

func (r *telegramRenderer) renderCodeBlock(code []byte, language string) {
	r.ensureBlankLine()
	escaped := html.EscapeString(strings.TrimRight(string(code), "\n"))
	if language != "" {
		r.write(`<pre><code class="language-` + html.EscapeString(language) + `">` + escaped + "</code></pre>")
	} else {
		r.write("<pre>" + escaped + "</pre>")
	}
	r.ensureBlankLine()
}

// renderTable degrades a GFM table to a pre block: Telegram has no
// table markup and proportional fonts mangle padded columns anyway.
func (r *telegramRenderer) renderTable(node ast.Node) {
	var rows [][]string
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.Kind() {
		case extast.KindTableHeader, extast.KindTableRow:
			var cells []string
			for cell := child.FirstChild(); cell != nil; cell = cell.NextSibling() {
				cells = append(cells, string(cell.Text(r.source)))
			}
			rows = append(rows, cells)
		}
	}
	if len(rows) == 0 {
		return
	}

	var plain strings.Builder
	for i, cells := range rows {
		if i > 0 {
			plain.WriteString("\n")
		}
		plain.WriteString(strings.Join(cells, " | "))
	}

	r.ensureBlankLine()
	r.write("<pre>" + html.EscapeString(plain.String()) + "</pre>")
	r.ensureBlankLine()
}

// trimTrailingNewlines drops newlines already emitted so a closing tag
// hugs its content. Only the builder tail is rewritten.
func (r *telegramRenderer) trimTrailingNewlines() {
	if r.trailingNewlines == 0 {
		return
	}
	s := strings.TrimRight(r.out.String(), "\n")
	r.out.Reset()
	r.out.WriteString(s)
	r.trailingNewlines = 0
}

func collectLines(node ast.Node, source []byte) []byte {
	var buf []byte
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf = append(buf, seg.Value(source)...)
	}
	return buf
}

func collectInlineCode(node ast.Node, source []byte) string {
	var code strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Text:
			code.Write(n.Segment.Value(source))
		case *ast.String:
			code.Write(n.Value)
		}
	}
	return code.String()
}
