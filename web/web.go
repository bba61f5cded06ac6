// Package web holds the chat page template and its static assets.
package web

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed templates/*.html
var templates embed.FS

//go:embed static
var static embed.FS

// Templates returns the template tree rooted at dir, or the embedded copy when
// dir is empty.
func Templates(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	sub, _ := fs.Sub(templates, "templates")
	return sub
}

// Static returns the static asset tree rooted at dir, or the embedded copy
// when dir is empty.
func Static(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	sub, _ := fs.Sub(static, "static")
	return sub
}
