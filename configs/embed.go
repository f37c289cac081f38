// Package configs provides the embedded configuration template for corpusindex.
//
// The template is embedded at build time via //go:embed so it ships inside the
// binary regardless of install method. See internal/config/config.go for the
// load order (defaults → this template, once copied out → environment overlay).
package configs

import _ "embed"

// DefaultConfigTemplate is the example user configuration, meant to be copied
// to ~/.config/corpusindex/config.yaml; no command writes it out.
//
//go:embed default-config.example.yaml
var DefaultConfigTemplate string
