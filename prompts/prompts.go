// Package prompts embeds the default prompt templates.
package prompts

import "embed"

// FS holds system.txt and extraction.txt.
//
//go:embed *.txt
var FS embed.FS
