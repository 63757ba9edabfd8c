// Package migrations embeds the schema migration files and exposes them with
// the Asset/AssetNames shape the go_bindata migrate source expects.
package migrations

import (
	"embed"
)

//go:embed *.sql
var files embed.FS

// Asset returns the content of the named migration file.
func Asset(name string) ([]byte, error) {
	return files.ReadFile(name)
}

// AssetNames lists the embedded migration file names.
func AssetNames() []string {
	entries, err := files.ReadDir(".")
	if err != nil {
		panic(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
