package report

import (
	"bytes"
	"fmt"
	"html"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Terminal renders Markdown for a terminal. Style "" selects the plain
// "notty" style, which needs no color support.
func Terminal(md, style string, width int) (string, error) {
	if style == "" {
		style = "notty"
	}
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("terminal renderer: %w", err)
	}
	return r.Render(md)
}

var htmlRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

// HTML converts Markdown, tables included, into an HTML fragment.
func HTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := htmlRenderer.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

// Page wraps an HTML fragment in a minimal standalone document.
func Page(title, fragment string) string {
	return "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>" + html.EscapeString(title) +
		"</title></head>\n<body>\n" + fragment + "</body></html>\n"
}
