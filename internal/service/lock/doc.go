// Package lock keeps two publisher processes from sharing one build directory.
//
// The lock is a marker file holding the owner's PID. A marker left behind by a
// process that no longer runs, or one that cannot be parsed, is taken over.
package lock
