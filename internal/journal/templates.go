package journal

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// templateData is what journal templates can reference.
type templateData struct {
	Date  time.Time
	Input string
	Title string
	Link  string
}

func templateFuncs(tag language.Tag) template.FuncMap {
	titler := cases.Title(tag)
	return template.FuncMap{
		"long":    func(t time.Time) string { return t.Format("Monday, January 2, 2006") },
		"iso":     func(t time.Time) string { return t.Format("2006-01-02") },
		"weekday": func(t time.Time) string { return t.Weekday().String() },
		"format":  func(layout string, t time.Time) string { return t.Format(layout) },
		"title":   titler.String,
	}
}

// render executes a named template source.
func render(name, source string, tag language.Tag, data templateData) (string, error) {
	tmpl, err := template.New(name).Funcs(templateFuncs(tag)).Parse(source)
	if err != nil {
		return "", fmt.Errorf("invalid %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", name, err)
	}
	return buf.String(), nil
}
