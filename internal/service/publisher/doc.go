// Package publisher uploads packed artifacts and their patches to object storage
// and maintains the "latest" tags that point clients at the current artifact.
package publisher
