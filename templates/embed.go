// Package templates embeds the bundled rule catalog and report templates.
//
// Usage:
//
//	data, _ := templates.FS.ReadFile("rules/default.yaml")
//	tmpl, _ := templates.FS.ReadFile("output/markdown.tmpl")
package templates

import "embed"

// FS contains rules/*.yaml (detection catalogs) and output/*.tmpl (Go
// text/template report formats rendered with sprig functions).
//
//go:embed rules/*.yaml output/*.tmpl
var FS embed.FS
