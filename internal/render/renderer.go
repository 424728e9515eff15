// Package render turns tree views into HTML for the browser panel.
package render

import (
	"bytes"
	_ "embed"
	"strconv"
	"strings"

	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	alertcallouts "github.com/zmtcreative/gm-alert-callouts"

	"go-journal/internal/host"
)

const mdLineAttribute = "data-md-line"

// emptyNotice is shown when a tree has no items.
const emptyNotice = "> [!TIP]\n> No open tasks. Add one with `- [ ] ` in today's entry.\n"

// Renderer is a wrapper around the Goldmark markdown parser with pre-configured extensions
type Renderer struct {
	md goldmark.Markdown
}

//go:embed page.html
var pageTemplate string

func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			alertcallouts.AlertCallouts,
			extension.Strikethrough,
			extension.TaskList,
			extension.Linkify,
			highlighting.NewHighlighting(
				highlighting.WithWrapperRenderer(renderHighlightedCodeWrapper),
				highlighting.WithGuessLanguage(true),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Renderer{md: md}
}

// Document is the markdown form of a tree. Targets maps a 1-based markdown
// line to the tree item rendered on it.
type Document struct {
	Source  []byte
	Targets map[int]*host.TreeItem
}

// TreeDocument writes flattened tree lines as markdown: roots become headings
// and their children task list items, with any item detail nested below.
// Detail lines target their item too.
func TreeDocument(title string, lines []host.TreeLine) Document {
	var b strings.Builder
	targets := make(map[int]*host.TreeItem)
	line := 1

	writeLine := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
		line++
	}

	writeLine("# " + title)
	writeLine("")

	if len(lines) == 0 {
		b.WriteString(emptyNotice)
		return Document{Source: []byte(b.String()), Targets: targets}
	}

	inList := false
	for _, l := range lines {
		item := l.Item
		if l.Depth == 0 {
			if inList {
				writeLine("")
				inList = false
			}
			heading := "## " + oneLine(item.Label)
			if item.Description != "" {
				heading += " · " + oneLine(item.Description)
			}
			targets[line] = item
			writeLine(heading)
			writeLine("")
			continue
		}
		indent := strings.Repeat("  ", l.Depth-1)
		targets[line] = item
		writeLine(indent + "- [ ] " + oneLine(item.Label))
		inList = true

		if item.Detail == "" {
			continue
		}
		for _, detail := range strings.Split(item.Detail, "\n") {
			if strings.TrimSpace(detail) == "" {
				writeLine("")
				continue
			}
			targets[line] = item
			writeLine(indent + "  " + detail)
		}
	}
	return Document{Source: []byte(b.String()), Targets: targets}
}

// oneLine keeps rendered labels on a single markdown line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ConvertFragment parses markdown source and returns the HTML fragment
// with data-md-line attributes attached to block elements.
func (r *Renderer) ConvertFragment(source []byte) (string, error) {
	doc := r.md.Parser().Parse(text.NewReader(source))
	annotateLines(doc, source)

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, source, doc); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// RenderShell returns an empty HTML page shell for the initial WebSocket connection.
// Content will be injected dynamically via WebSocket messages.
func (r *Renderer) RenderShell() string {
	return strings.Replace(pageTemplate, "{{CONTENT}}", "", 1)
}

// annotateLines attaches data-md-line to block-level elements so the
// browser can report which line was clicked.
func annotateLines(doc ast.Node, source []byte) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || !shouldAnnotateNode(n) {
			return ast.WalkContinue, nil
		}
		if offset, ok := firstNodeOffset(n); ok {
			n.SetAttributeString(mdLineAttribute, strconv.Itoa(offsetToLine(source, offset)))
		}
		return ast.WalkContinue, nil
	})
}

func shouldAnnotateNode(n ast.Node) bool {
	switch n.Kind() {
	case ast.KindHeading,
		ast.KindParagraph,
		ast.KindBlockquote,
		ast.KindFencedCodeBlock,
		ast.KindListItem:
		return true
	default:
		return false
	}
}

// firstNodeOffset returns the byte offset of the first line in a node.
// If not, it recursively searches children to find the first meaningful offset.
func firstNodeOffset(n ast.Node) (int, bool) {
	if n == nil {
		return 0, false
	}

	if lines := n.Lines(); lines != nil && lines.Len() > 0 {
		return lines.At(0).Start, true
	}

	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if offset, ok := firstNodeOffset(child); ok {
			return offset, true
		}
	}

	return 0, false
}

// offsetToLine converts a byte offset to a 1-based line number.
func offsetToLine(source []byte, offset int) int {
	if offset < 0 {
		offset = 0
	}

	if offset > len(source) {
		offset = len(source)
	}

	return bytes.Count(source[:offset], []byte{'\n'}) + 1
}

// renderHighlightedCodeWrapper keeps the line attribute of highlighted code
// blocks on a wrapping div.
func renderHighlightedCodeWrapper(w util.BufWriter, context highlighting.CodeBlockContext, entering bool) {
	line, ok := highlightedCodeLine(context)
	if !ok {
		return
	}

	if entering {
		_, _ = w.WriteString("<div ")
		_, _ = w.WriteString(mdLineAttribute)
		_, _ = w.WriteString(`="`)
		_, _ = w.WriteString(line)
		_, _ = w.WriteString(`">`)
		return
	}

	_, _ = w.WriteString("</div>")
}

func highlightedCodeLine(context highlighting.CodeBlockContext) (string, bool) {
	if context == nil {
		return "", false
	}

	attrs := context.Attributes()
	if attrs == nil {
		return "", false
	}

	v, ok := attrs.GetString(mdLineAttribute)
	if !ok {
		return "", false
	}

	switch typed := v.(type) {
	case string:
		return typed, typed != ""
	case []byte:
		if len(typed) == 0 {
			return "", false
		}
		return string(typed), true
	default:
		return "", false
	}
}
