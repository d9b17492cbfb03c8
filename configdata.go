// Package seer provides embedded assets for the seer daemon.
//
// The root package exists solely to embed [config.default.toml] via
// [DefaultConfigTOML], which `seer -print-config` writes to stdout as a
// starting point for a custom config file.
package seer

import _ "embed"

// DefaultConfigTOML holds the raw bytes of config.default.toml, embedded at
// build time.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
