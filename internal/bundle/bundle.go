// Package bundle embeds the configuration and logging documents into the
// binary for archive mode.
package bundle

import (
	"embed"
	"io/fs"
)

//go:embed config/*.toml logging/*.yaml
var files embed.FS

// FS returns the embedded documents, laid out as config/<env>.toml and logging/<name>.yaml.
func FS() fs.FS {
	return files
}
