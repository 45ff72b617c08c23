// Package config handles configuration loading, parsing, and validation
// from defaults, an optional config file and ANNOTATOR_ environment
// variables. Each component receives only the section it needs.
package config
