// Package migrations embeds the schema migrations and seed data so the
// migrate command works without a checkout on disk.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sql
var sqlFS embed.FS

//go:embed seeds
var seedsFS embed.FS

// SQL is the ordered migration set.
func SQL() fs.FS {
	sub, err := fs.Sub(sqlFS, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

// Seeds is the idempotent seed set (access levels, built-in modules).
func Seeds() fs.FS {
	sub, err := fs.Sub(seedsFS, "seeds")
	if err != nil {
		panic(err)
	}
	return sub
}
