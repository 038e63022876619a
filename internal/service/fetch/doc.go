// Package fetch downloads work sets and upstream artifacts over HTTP with a bounded fixed-delay retry.
package fetch
