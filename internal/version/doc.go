// Package version exposes build metadata of crx-release.
//
// Version, Commit and BuildTime are injected through Go ldflags. UserAgent
// renders them for outgoing HTTP requests so upstream hosts can identify the
// publisher.
package version
