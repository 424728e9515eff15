package markdown

import (
	"bytes"
	"regexp"
	"strings"
)

// adocChecklist matches "* [ ] text", "** [x] text" and "- [*] text".
var adocChecklist = regexp.MustCompile(`^\s*(\*+|-)\s+\[([ xX*])\]\s+(.*)$`)

// AsciidocTasks returns the checklist items of an asciidoc document.
// Lines inside listing and literal blocks are skipped. Lines have no length
// limit.
func AsciidocTasks(source []byte) []Task {
	var tasks []Task
	var fence string

	line := 0
	for chunk := range bytes.Lines(source) {
		line++
		raw := strings.TrimRight(string(chunk), "\r\n")
		trimmed := strings.TrimSpace(raw)

		if trimmed == "----" || trimmed == "...." {
			switch fence {
			case "":
				fence = trimmed
			case trimmed:
				fence = ""
			}
			continue
		}
		if fence != "" {
			continue
		}

		m := adocChecklist.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		tasks = append(tasks, Task{
			Line: line,
			Text: strings.TrimSpace(m[3]),
			Done: m[2] != " ",
		})
	}
	return tasks
}

// IsAsciidoc reports whether a file name has an asciidoc extension.
func IsAsciidoc(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".adoc") || strings.HasSuffix(lower, ".asciidoc")
}

// IsMarkdown reports whether a file name has a markdown extension.
func IsMarkdown(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown")
}
