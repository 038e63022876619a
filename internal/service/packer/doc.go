// Package packer signs and packs a staged extension directory into a CRX package
// by delegating to an external browser binary or compatible tool.
package packer
