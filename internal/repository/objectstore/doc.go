// Package objectstore implements the object storage capability of the publisher.
//
// Objects are addressed by slash-separated keys and carry a small tag set used
// for the "latest" convention. S3Store talks to S3 or any S3-compatible service;
// FSStore mirrors the same semantics on a local directory for dry runs and tests.
package objectstore
