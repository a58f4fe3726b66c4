// Package templates embeds the default workspace configuration and its
// JSON schema.
package templates

import "embed"

//go:embed config.yaml config.schema.json
var FS embed.FS

const (
	ConfigFile = "config.yaml"
	SchemaFile = "config.schema.json"
)
