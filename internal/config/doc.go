// Package config defines the settings of the release tools and helpers to
// load, validate and save them.
//
// Settings come from an optional YAML file overlaid with environment variables
// (cleanenv tags), so the same binary runs from a checked-in config locally and
// from plain environment in CI. The resulting Config is passed explicitly to
// every component constructor.
package config
