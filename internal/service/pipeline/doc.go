// Package pipeline drives every component of a work set through hashing,
// version decision, staging, packing, delta generation, publishing and
// recording, isolating failures per component.
package pipeline
