package langserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
)

func TestTaskState(t *testing.T) {
	tests := []struct {
		line         string
		isTask, done bool
	}{
		{"- [ ] open", true, false},
		{"  * [x] nested done", true, true},
		{"1. [X] numbered", true, true},
		{"** [*] asciidoc done", true, true},
		{"+ [ ] plus", true, false},
		{"-[ ] no space", false, false},
		{"[ ] no marker", false, false},
		{"- plain", false, false},
	}
	for _, tt := range tests {
		isTask, done := taskState(tt.line)
		assert.Equal(t, tt.isTask, isTask, tt.line)
		assert.Equal(t, tt.done, done, tt.line)
	}
}

func TestToggleTaskReopen(t *testing.T) {
	edits, err := toggleTask("a\r\n  * [*] ship it\r\n", 1, false, "2006", wednesday)
	require.NoError(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, " ", edits[0].NewText)
	assert.Equal(t, protocol.Position{Line: 1, Character: 5}, edits[0].Range.Start)
}

func TestToggleTaskSuffixCountsUTF16(t *testing.T) {
	edits, err := toggleTask("- [ ] café 😀\n", 0, true, "2006-01-02", wednesday)
	require.NoError(t, err)
	require.Len(t, edits, 2)
	// "- [ ] café " is 11 units, the emoji is a surrogate pair.
	assert.Equal(t, uint32(13), edits[1].Range.Start.Character)
}

func TestCompleteListItem(t *testing.T) {
	items := complete("- [\n", protocol.Position{Line: 0, Character: 3}, wednesday)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].TextEdit)
	assert.Equal(t, "[ ] ", items[0].TextEdit.NewText)
	assert.Equal(t, uint32(2), items[0].TextEdit.Range.Start.Character)
	assert.Equal(t, uint32(3), items[0].TextEdit.Range.End.Character)

	assert.Empty(t, complete("prose\n", protocol.Position{Line: 0, Character: 5}, wednesday))
	assert.Empty(t, complete("", protocol.Position{Line: 3}, wednesday))
}

func TestCompleteAllDateKeywords(t *testing.T) {
	items := complete("due @", protocol.Position{Line: 0, Character: 5}, wednesday)
	require.Len(t, items, 10)

	byLabel := map[string]string{}
	for _, item := range items {
		byLabel[item.Label] = item.TextEdit.NewText
	}
	assert.Equal(t, "2024-05-15", byLabel["@today"])
	assert.Equal(t, "2024-05-14", byLabel["@yesterday"])
	assert.Equal(t, "2024-05-22", byLabel["@wednesday"])
	assert.Equal(t, "2024-05-17", byLabel["@friday"])
}

func TestDocumentStoreIgnoresStaleVersions(t *testing.T) {
	store := NewDocumentStore()
	store.Open(Document{URI: "file:///a.md", Version: 3, Text: "three"})
	store.Change("file:///a.md", 2, "two")

	text, err := store.Text("file:///a.md")
	require.NoError(t, err)
	assert.Equal(t, "three", text)

	store.Close("file:///a.md")
	_, err = store.Text("untitled:b")
	assert.Error(t, err)
}
