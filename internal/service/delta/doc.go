// Package delta produces binary patches that upgrade previously published
// artifacts of a component to its newly packed artifact.
package delta
