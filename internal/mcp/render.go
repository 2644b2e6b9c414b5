package mcp

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// RenderScript reduces a tool result to the single string the script
// evaluator consumes: a lone text item verbatim, several text items joined
// with newlines, an image's opaque data string, or the item's string form.
func RenderScript(r *Result) string {
	if r == nil {
		return ""
	}
	var texts []string
	for _, c := range r.Content {
		if c.Kind == ContentText {
			texts = append(texts, c.Text)
		}
	}
	if len(texts) > 0 {
		return strings.Join(texts, "\n")
	}
	for _, c := range r.Content {
		switch c.Kind {
		case ContentImage, ContentAudio:
			return c.Data
		default:
			return fmt.Sprint(c.Raw)
		}
	}
	return ""
}

// RenderCommandLines expands a tool result into the lines a command prints:
// text split per line, structured content pretty-printed, meta fields as
// "key: value" lines.
func RenderCommandLines(r *Result) []string {
	if r == nil {
		return nil
	}
	var lines []string
	for _, c := range r.Content {
		switch c.Kind {
		case ContentText:
			lines = append(lines, strings.Split(c.Text, "\n")...)
		case ContentImage, ContentAudio:
			lines = append(lines, c.Data)
		default:
			lines = append(lines, fmt.Sprint(c.Raw))
		}
	}
	if r.Structured != nil {
		if pretty, err := json.MarshalIndent(r.Structured, "", "  "); err == nil {
			lines = append(lines, strings.Split(string(pretty), "\n")...)
		} else {
			lines = append(lines, fmt.Sprint(r.Structured))
		}
	}
	if len(r.Meta) > 0 {
		keys := make([]string, 0, len(r.Meta))
		for k := range r.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("%s: %v", k, r.Meta[k]))
		}
	}
	return lines
}
