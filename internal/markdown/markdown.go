// Package markdown finds checklist tasks in journal documents.
package markdown

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extensionast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Task is a checklist item of a document.
type Task struct {
	// Line is 1-based.
	Line int
	Text string
	Done bool
	// Detail is the markdown nested under the task's first line: wrapped
	// text, paragraphs and fenced code. Nested lists are tasks of their own
	// and stay out.
	Detail string
}

var checkboxPrefix = regexp.MustCompile(`^\s*\[[ xX]\]\s*`)

// Parser extracts tasks from markdown with goldmark's task list extension.
type Parser struct {
	md goldmark.Markdown
}

func NewParser() *Parser {
	md := goldmark.New(
		goldmark.WithExtensions(extension.TaskList),
	)
	return &Parser{md: md}
}

// Tasks returns the checklist items of a markdown document in source order.
func (p *Parser) Tasks(source []byte) []Task {
	doc := p.md.Parser().Parse(text.NewReader(source))

	var tasks []Task
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		box, ok := n.(*extensionast.TaskCheckBox)
		if !ok {
			return ast.WalkContinue, nil
		}

		block := box.Parent()
		offset, ok := firstNodeOffset(block)
		if !ok {
			return ast.WalkSkipChildren, nil
		}

		tasks = append(tasks, Task{
			Line:   offsetToLine(source, offset),
			Text:   blockText(block, source),
			Done:   box.IsChecked,
			Detail: blockDetail(block, source),
		})
		return ast.WalkSkipChildren, nil
	})
	return tasks
}

// blockText returns the first line of a task's text block without the checkbox.
func blockText(n ast.Node, source []byte) string {
	lines := n.Lines()
	if lines == nil || lines.Len() == 0 {
		return ""
	}
	seg := lines.At(0)
	line := strings.TrimRight(string(seg.Value(source)), "\r\n")
	return strings.TrimSpace(checkboxPrefix.ReplaceAllString(line, ""))
}

// blockDetail renders what follows a task's first line inside its list item.
func blockDetail(first ast.Node, source []byte) string {
	var blocks []string

	if lines := first.Lines(); lines != nil && lines.Len() > 1 {
		blocks = append(blocks, textLines(lines, 1, source))
	}

	for n := first.NextSibling(); n != nil; n = n.NextSibling() {
		switch n := n.(type) {
		case *ast.FencedCodeBlock:
			var code strings.Builder
			for i := 0; i < n.Lines().Len(); i++ {
				seg := n.Lines().At(i)
				code.Write(seg.Value(source))
			}
			body := code.String()
			if body != "" && !strings.HasSuffix(body, "\n") {
				body += "\n"
			}
			fence := codeFence(body)
			blocks = append(blocks, fence+string(n.Language(source))+"\n"+body+fence)
		case *ast.Paragraph, *ast.TextBlock:
			blocks = append(blocks, textLines(n.Lines(), 0, source))
		}
	}
	return strings.Join(blocks, "\n\n")
}

func textLines(lines *text.Segments, from int, source []byte) string {
	out := make([]string, 0, lines.Len()-from)
	for i := from; i < lines.Len(); i++ {
		seg := lines.At(i)
		out = append(out, strings.TrimSpace(string(seg.Value(source))))
	}
	return strings.Join(out, "\n")
}

// codeFence returns a backtick fence longer than any backtick run in body.
func codeFence(body string) string {
	longest, run := 0, 0
	for _, r := range body {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	if longest < 3 {
		return "```"
	}
	return strings.Repeat("`", longest+1)
}

// firstNodeOffset returns the byte offset of the first line in a node.
// If the node has no lines of its own, its children are searched.
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
// The offset is clamped to the valid range [0, len(source)].
func offsetToLine(source []byte, offset int) int {
	if offset < 0 {
		offset = 0
	}

	if offset > len(source) {
		offset = len(source)
	}

	return bytes.Count(source[:offset], []byte{'\n'}) + 1
}
