// Package configs embeds the annotated configuration template written by
// 'stratoindex config init'.
package configs

import _ "embed"

// ConfigTemplate is a commented configuration file holding the defaults.
//
//go:embed config.example.yaml
var ConfigTemplate string
