package host

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// PositionOffset converts an LSP position (UTF-16 columns) to a byte offset in text.
func PositionOffset(text string, pos protocol.Position) (int, error) {
	offset := 0
	for line := uint32(0); line < pos.Line; line++ {
		i := strings.IndexByte(text[offset:], '\n')
		if i < 0 {
			return 0, fmt.Errorf("line %d out of range", pos.Line)
		}
		offset += i + 1
	}

	units := uint32(0)
	for offset < len(text) && units < pos.Character {
		r, size := utf8.DecodeRuneInString(text[offset:])
		if r == '\n' {
			break
		}
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
		offset += size
	}
	return offset, nil
}

// ApplyTextEdits applies non-overlapping edits to text.
func ApplyTextEdits(text string, edits []protocol.TextEdit) (string, error) {
	type span struct {
		start, end int
		newText    string
	}

	spans := make([]span, 0, len(edits))
	for _, e := range edits {
		start, err := PositionOffset(text, e.Range.Start)
		if err != nil {
			return "", err
		}
		end, err := PositionOffset(text, e.Range.End)
		if err != nil {
			return "", err
		}
		if end < start {
			return "", fmt.Errorf("edit range ends before it starts")
		}
		spans = append(spans, span{start: start, end: end, newText: e.NewText})
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	last := 0
	for _, s := range spans {
		if s.start < last {
			return "", fmt.Errorf("overlapping edits")
		}
		b.WriteString(text[last:s.start])
		b.WriteString(s.newText)
		last = s.end
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

// ApplyWorkspaceEditToDisk rewrites every file named in edit.Changes.
func ApplyWorkspaceEditToDisk(edit protocol.WorkspaceEdit) error {
	for u, edits := range edit.Changes {
		path := uri.URI(u).Filename()
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		updated, err := ApplyTextEdits(string(data), edits)
		if err != nil {
			return fmt.Errorf("failed to edit %s: %w", path, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}
