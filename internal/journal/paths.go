package journal

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// EntryPath returns the file of the day entry for date.
func EntryPath(base, ext string, date time.Time) string {
	return filepath.Join(base, date.Format("2006"), date.Format("01"), date.Format("02")+"."+ext)
}

// NotesDir returns the folder holding the notes of date.
func NotesDir(base string, date time.Time) string {
	return filepath.Join(base, date.Format("2006"), date.Format("01"), date.Format("02"))
}

// NotePath returns the file of a note titled title on date.
func NotePath(base, ext string, date time.Time, title string) (string, error) {
	slug := Slug(title)
	if slug == "" {
		return "", fmt.Errorf("note title %q has no usable characters", title)
	}
	return filepath.Join(NotesDir(base, date), slug+"."+ext), nil
}

// DateFromPath recovers the day of an entry or note path below base.
func DateFromPath(base, path string) (time.Time, bool) {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return time.Time{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 3 {
		return time.Time{}, false
	}
	day := strings.TrimSuffix(parts[2], filepath.Ext(parts[2]))
	d, err := time.ParseInLocation("2006/01/02", parts[0]+"/"+parts[1]+"/"+day, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Slug turns a title into a file name: lower case words joined by dashes.
func Slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
