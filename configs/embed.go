// Package configs provides embedded configuration templates for orgmcp.
//
// Templates are embedded at build time using Go's //go:embed directive, so
// they ship with every distribution (go install, binary releases).
//
// The templates are used by:
//   - cmd/orgmcp/cmd/config.go → `orgmcp config init` creates the user config
//     at ~/.config/orgmcp/config.yaml
//   - cmd/orgmcp/cmd/config.go → `orgmcp config init --project` creates
//     .orgmcp.yaml in the project root
//
// Configuration hierarchy (see internal/config Load()):
//  1. Hardcoded defaults (internal/config NewConfig())
//  2. User config (~/.config/orgmcp/config.yaml)
//  3. Project config (.orgmcp.yaml)
//  4. Environment variables (ORGMCP_*)
//
// To modify templates, edit the .yaml files in this directory and rebuild.
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration:
// embedding provider, logging, telemetry. Settings that apply to all
// projects on this machine.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration:
// search weights, vocabulary, index and corpus directories. Settings that
// are version-controlled with the corpus.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
