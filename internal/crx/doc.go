// Package crx reads and prepares browser extension archives.
//
// It understands CRX2 and CRX3 containers as well as plain zip payloads,
// parses the manifest descriptor (resolving localized titles), extracts
// archives into scratch directories and stages a source tree with a
// rewritten manifest version for the external packer.
package crx
