// Package version carries the release version stamped into the CLI and outbound requests.
package version

// Current is bumped on release.
const Current = "0.3.0"
