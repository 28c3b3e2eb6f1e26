package uistatic

import (
	"bytes"
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"
)

//go:embed all:app
var appFS embed.FS

// Handler serves the chat page and its assets.
func Handler() http.Handler {
	sub, err := fs.Sub(appFS, "app")
	if err != nil {
		return http.NotFoundHandler()
	}
	return handlerFor(sub)
}

type page struct {
	assets http.Handler
	files  fs.FS
	index  []byte
}

// handlerFor loads index.html once; any path that is not an asset falls
// back to it so the page can be bookmarked under any path. API paths are
// never masked.
func handlerFor(files fs.FS) http.Handler {
	index, err := fs.ReadFile(files, "index.html")
	if err != nil {
		return http.NotFoundHandler()
	}
	return &page{assets: http.FileServer(http.FS(files)), files: files, index: index}
}

func (p *page) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
	switch {
	case name == "v1" || strings.HasPrefix(name, "v1/"):
		http.NotFound(w, r)
	case name == "." || name == "index.html":
		p.serveIndex(w, r)
	case isFile(p.files, name):
		w.Header().Set("Cache-Control", "no-cache")
		p.assets.ServeHTTP(w, r)
	default:
		p.serveIndex(w, r)
	}
}

func (p *page) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "index.html", time.Time{}, bytes.NewReader(p.index))
}

func isFile(files fs.FS, name string) bool {
	info, err := fs.Stat(files, name)
	return err == nil && !info.IsDir()
}
