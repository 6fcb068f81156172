// Package config loads and saves the calmerge YAML configuration.
//
// A missing file is created with defaults on first use. Keys absent from an
// existing file keep their defaults; Normalize repairs zero or negative
// values and Validate rejects settings that cannot be used.
package config
