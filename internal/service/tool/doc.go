// Package tool runs the external executables of the pipeline (packer and differ)
// from a binary name and an argument template with {placeholder} substitution.
package tool
