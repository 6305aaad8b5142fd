// Package markdown implements the content heuristic that decides whether a
// fetched payload is plausibly Markdown. GitHub's raw host serves error and
// redirect pages with a 200 status; catching those cheaply is the whole point
// of this check, so it is a substring heuristic and not a parser.
package markdown

import (
	"fmt"
	"strings"
)

// markers count as evidence that a line belongs to a Markdown document:
// headings, fenced code blocks, list items, links, emphasis and blockquotes.
var markers = []string{"# ", "## ", "### ", "```", "- ", "* ", "1. ", "[", "**", "_", "> "}

const (
	htmlScanWindow  = 100 // bytes inspected for an <html marker
	minContentSize  = 50  // minimum stripped payload size in bytes
	markerScanLines = 50  // lines inspected for markers
	minMarkerHits   = 2
)

// ValidationError reports why a payload was rejected. Validation failures are
// terminal for the file in question; they are never retried within a run.
type ValidationError struct {
	Label  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid content for %s: %s", e.Label, e.Reason)
}

// Validate returns nil if content looks like Markdown, or a *ValidationError
// describing the first rule it violated. The label identifies the payload in
// the error message only.
func Validate(content, label string) error {
	window := content
	if len(window) > htmlScanWindow {
		window = window[:htmlScanWindow]
	}
	if content == "" || strings.HasPrefix(content, "<!DOCTYPE") || strings.Contains(window, "<html") {
		return &ValidationError{Label: label, Reason: "received HTML instead of markdown"}
	}

	if stripped := strings.TrimSpace(content); len(stripped) < minContentSize {
		return &ValidationError{Label: label, Reason: fmt.Sprintf("content too short (%d bytes)", len(content))}
	}

	lines := strings.Split(content, "\n")
	if len(lines) > markerScanLines {
		lines = lines[:markerScanLines]
	}
	hits := 0
	for _, line := range lines {
		for _, m := range markers {
			if strings.Contains(line, m) {
				hits++
			}
		}
	}
	if hits < minMarkerHits {
		return &ValidationError{Label: label, Reason: fmt.Sprintf("content does not appear to be markdown (only %d indicators)", hits)}
	}

	return nil
}
