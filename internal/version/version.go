// Package version holds the tool version stamped into the User-Agent header
// and the manifest's fetch_tool_version field.
package version

// Version is overridden at release time via ldflags.
var Version = "1.0"
