package langserver

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf16"

	"go.lsp.dev/protocol"

	"go-journal/internal/journal"
)

var (
	// dateTrigger matches "@" and a partial keyword right before the cursor.
	dateTrigger = regexp.MustCompile(`@([A-Za-z]*)$`)
	// itemTrigger matches a list marker, optionally followed by "[".
	itemTrigger = regexp.MustCompile(`^(\s*(?:[-+]|\*+|\d+[.)])\s+)(\[?)$`)
)

type dateKeyword struct {
	name string
	date func(today time.Time) time.Time
}

func dateKeywords() []dateKeyword {
	keywords := []dateKeyword{
		{"today", func(t time.Time) time.Time { return t }},
		{"tomorrow", func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }},
		{"yesterday", func(t time.Time) time.Time { return t.AddDate(0, 0, -1) }},
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		wd := wd
		keywords = append(keywords, dateKeyword{
			name: strings.ToLower(wd.String()),
			date: func(t time.Time) time.Time {
				return journal.RelativeWeekday(t, wd, 0)
			},
		})
	}
	return keywords
}

// complete returns the completion items for the cursor at pos.
func complete(text string, pos protocol.Position, now time.Time) []protocol.CompletionItem {
	all := lines(text)
	if int(pos.Line) >= len(all) {
		return nil
	}
	before := prefixUTF16(all[pos.Line], pos.Character)

	if m := dateTrigger.FindStringSubmatch(before); m != nil {
		return dateItems(pos, m[1], now)
	}
	if m := itemTrigger.FindStringSubmatch(before); m != nil {
		start := utf16Len(m[1])
		return []protocol.CompletionItem{{
			Label:      "[ ] task",
			Kind:       protocol.CompletionItemKindSnippet,
			Detail:     "Open task",
			FilterText: m[2],
			TextEdit: &protocol.TextEdit{
				Range: protocol.Range{
					Start: protocol.Position{Line: pos.Line, Character: start},
					End:   pos,
				},
				NewText: "[ ] ",
			},
		}}
	}
	return nil
}

func dateItems(pos protocol.Position, partial string, now time.Time) []protocol.CompletionItem {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	start := pos.Character - uint32(utf16Len(partial)) - 1
	partial = strings.ToLower(partial)

	var items []protocol.CompletionItem
	for i, kw := range dateKeywords() {
		if !strings.HasPrefix(kw.name, partial) {
			continue
		}
		iso := kw.date(today).Format("2006-01-02")
		items = append(items, protocol.CompletionItem{
			Label:      "@" + kw.name,
			Kind:       protocol.CompletionItemKindValue,
			Detail:     iso,
			FilterText: "@" + kw.name,
			SortText:   string(rune('a' + i)),
			TextEdit: &protocol.TextEdit{
				Range: protocol.Range{
					Start: protocol.Position{Line: pos.Line, Character: start},
					End:   pos,
				},
				NewText: iso,
			},
		})
	}
	return items
}

// prefixUTF16 returns the part of line before the UTF-16 column col.
func prefixUTF16(line string, col uint32) string {
	var units uint32
	for i, r := range line {
		if units >= col {
			return line[:i]
		}
		units += uint32(len(utf16.Encode([]rune{r})))
	}
	return line
}

func utf16Len(s string) uint32 {
	return uint32(len(utf16.Encode([]rune(s))))
}
