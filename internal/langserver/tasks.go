package langserver

import (
	"regexp"
	"time"
	"unicode/utf16"

	"go.lsp.dev/protocol"

	"go-journal/internal/rpc"
)

// taskLine matches markdown ("- [ ]", "1. [x]") and asciidoc ("* [*]") checklist lines.
// The groups are the text up to the box, the mark and the rest of the line.
var taskLine = regexp.MustCompile(`^(\s*(?:[-+]|\*+|\d+[.)])\s+\[)([ xX*])(\].*)$`)

// taskState reports whether line is a task and whether it is done.
func taskState(line string) (isTask, done bool) {
	m := taskLine.FindStringSubmatch(line)
	if m == nil {
		return false, false
	}
	return true, m[2] != " "
}

// toggleTask returns the edits that mark the task on line as done or open.
// A completed task gets suffix (a time layout) appended when it is not empty.
func toggleTask(text string, line uint32, done bool, suffix string, now time.Time) ([]protocol.TextEdit, error) {
	all := lines(text)
	if int(line) >= len(all) {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "line %d is beyond the end of the document", line)
	}

	content := all[line]
	m := taskLine.FindStringSubmatch(content)
	if m == nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "line %d is not a task", line)
	}
	if isDone := m[2] != " "; isDone == done {
		state := "open"
		if done {
			state = "completed"
		}
		return nil, rpc.NewError(rpc.CodeInvalidParams, "task on line %d is already %s", line, state)
	}

	mark := " "
	if done {
		mark = "x"
	}
	// The prefix is ASCII, so its byte length is its UTF-16 length.
	col := uint32(len(m[1]))
	edits := []protocol.TextEdit{{
		Range: protocol.Range{
			Start: protocol.Position{Line: line, Character: col},
			End:   protocol.Position{Line: line, Character: col + 1},
		},
		NewText: mark,
	}}

	if done && suffix != "" {
		end := uint32(len(utf16.Encode([]rune(content))))
		edits = append(edits, protocol.TextEdit{
			Range: protocol.Range{
				Start: protocol.Position{Line: line, Character: end},
				End:   protocol.Position{Line: line, Character: end},
			},
			NewText: " " + now.Format(suffix),
		})
	}
	return edits, nil
}

func taskTitle(done bool) string {
	if done {
		return "Reopen task"
	}
	return "Complete task"
}
