// ABOUTME: Embeds the default message catalog into the binary via go:embed
// ABOUTME: Used as the fallback when no override file exists on disk

package prompts

import "embed"

//go:embed templates/messages.yaml
var embeddedFS embed.FS

const catalogFile = "messages.yaml"
