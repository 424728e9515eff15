package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-journal/internal/host"
)

func sampleTree() []host.TreeLine {
	day := &host.TreeItem{ID: "/j/2024/05/15.md", Label: "2024-05-15", Description: "2 open tasks", File: "/j/2024/05/15.md", Collapsible: true}
	older := &host.TreeItem{ID: "/j/2024/05/14.md", Label: "2024-05-14", File: "/j/2024/05/14.md", Collapsible: true}
	return []host.TreeLine{
		{Depth: 0, Item: day},
		{Depth: 1, Item: &host.TreeItem{Label: "write report", File: day.File, Line: 3}},
		{Depth: 1, Item: &host.TreeItem{Label: "water\nplants", File: day.File, Line: 4}},
		{Depth: 0, Item: older},
		{Depth: 1, Item: &host.TreeItem{Label: "buy milk", File: older.File, Line: 3}},
	}
}

func TestTreeDocumentMapsLinesToItems(t *testing.T) {
	doc := TreeDocument("Journal tasks", sampleTree())

	assert.Equal(t, "# Journal tasks\n\n"+
		"## 2024-05-15 · 2 open tasks\n\n"+
		"- [ ] write report\n"+
		"- [ ] water plants\n\n"+
		"## 2024-05-14\n\n"+
		"- [ ] buy milk\n", string(doc.Source))

	require.Len(t, doc.Targets, 5)
	assert.Equal(t, "2024-05-15", doc.Targets[3].Label)
	assert.Equal(t, 3, doc.Targets[5].Line)
	assert.Equal(t, 4, doc.Targets[6].Line)
	assert.Equal(t, "/j/2024/05/14.md", doc.Targets[8].File)
	assert.Equal(t, "buy milk", doc.Targets[10].Label)
}

func TestConvertFragmentAnnotatesLines(t *testing.T) {
	doc := TreeDocument("Journal tasks", sampleTree())

	html, err := NewRenderer().ConvertFragment(doc.Source)
	require.NoError(t, err)

	assert.Contains(t, html, `id="journal-tasks"`)
	assert.Contains(t, html, `data-md-line="1"`)
	assert.Contains(t, html, `data-md-line="3"`)
	assert.Contains(t, html, `<li data-md-line="5">`)
	assert.Contains(t, html, `<li data-md-line="10">`)
	assert.Contains(t, html, `type="checkbox"`)
	assert.Contains(t, html, "write report")
}

func TestEmptyTreeShowsNotice(t *testing.T) {
	doc := TreeDocument("Journal tasks", nil)
	assert.Empty(t, doc.Targets)

	html, err := NewRenderer().ConvertFragment(doc.Source)
	require.NoError(t, err)
	assert.Contains(t, html, "No open tasks.")
	assert.NotContains(t, html, "[!TIP]")
}

func TestRenderShellHasNoPlaceholder(t *testing.T) {
	shell := NewRenderer().RenderShell()
	assert.Contains(t, shell, `<main id="content"></main>`)
	assert.NotContains(t, shell, "{{CONTENT}}")
}

func TestTaskDetailRendersHighlightedCode(t *testing.T) {
	day := &host.TreeItem{ID: "/j/2024/05/15.md", Label: "2024-05-15", File: "/j/2024/05/15.md", Collapsible: true}
	task := &host.TreeItem{
		Label:  "fix the importer",
		File:   day.File,
		Line:   3,
		Detail: "drops the last row\n\n```go\nfunc trim(rows []int) []int { return rows }\n```",
	}
	doc := TreeDocument("Journal tasks", []host.TreeLine{{Depth: 0, Item: day}, {Depth: 1, Item: task}})

	assert.Equal(t, "# Journal tasks\n\n"+
		"## 2024-05-15\n\n"+
		"- [ ] fix the importer\n"+
		"  drops the last row\n"+
		"\n"+
		"  ```go\n"+
		"  func trim(rows []int) []int { return rows }\n"+
		"  ```\n", string(doc.Source))
	assert.Same(t, task, doc.Targets[5])
	assert.Same(t, task, doc.Targets[6])
	assert.Same(t, task, doc.Targets[9])
	assert.NotContains(t, doc.Targets, 7)

	html, err := NewRenderer().ConvertFragment(doc.Source)
	require.NoError(t, err)

	assert.Contains(t, html, `<div data-md-line="9">`)
	assert.Contains(t, html, `class="chroma"`)
	assert.Contains(t, html, `class="kd"`)
	assert.Contains(t, html, "trim")
	assert.NotContains(t, html, "```")
}

func TestTaskDetailWithoutLanguageIsEscaped(t *testing.T) {
	task := &host.TreeItem{Label: "check markup", Line: 3, Detail: "```\n<script>alert(1)</script>\n```"}
	doc := TreeDocument("Journal tasks", []host.TreeLine{{Depth: 0, Item: &host.TreeItem{Label: "today"}}, {Depth: 1, Item: task}})

	html, err := NewRenderer().ConvertFragment(doc.Source)
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;")
}
