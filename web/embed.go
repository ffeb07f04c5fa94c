// Package web bundles the HTML templates and static assets into the binary.
package web

import "embed"

// Templates embeds HTML templates: layouts, partials and one file per page.
//
//go:embed templates
var Templates embed.FS

// Static embeds static assets.
//
//go:embed static
var Static embed.FS
