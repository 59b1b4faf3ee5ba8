package server

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-contrib/static"
)

//go:embed web
var webAssets embed.FS

// embedFileSystem adapts the embedded bundle to static.ServeFileSystem.
type embedFileSystem struct {
	http.FileSystem
}

// Exists reports whether path, below prefix, names a file or directory in
// the bundle.
func (e embedFileSystem) Exists(prefix, path string) bool {
	name, ok := strings.CutPrefix(path, prefix)
	if !ok {
		return false
	}
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}

	f, err := e.Open(name)
	if err != nil {
		return false
	}
	_ = f.Close()

	return true
}

func webFileSystem() static.ServeFileSystem {
	sub, err := fs.Sub(webAssets, "web")
	if err != nil {
		panic("embedded web bundle missing: " + err.Error())
	}

	return embedFileSystem{FileSystem: http.FS(sub)}
}
