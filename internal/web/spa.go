package web

import (
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// spaHandler serves a prebuilt single-page frontend. Unknown paths get
// index.html so client-side routes resolve; unknown API paths get a JSON 404.
type spaHandler struct {
	files  fs.FS
	server http.Handler
}

func newSPAHandler(files fs.FS) *spaHandler {
	return &spaHandler{
		files:  files,
		server: http.FileServer(http.FS(files)),
	}
}

func (h *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if name == "" || name == "." {
		name = "index.html"
	}

	info, err := fs.Stat(h.files, name)
	if err != nil || info.IsDir() {
		name = "index.html"
		r.URL.Path = "/"
	}

	if name == "index.html" {
		w.Header().Set("Cache-Control", "no-cache")
	} else if strings.HasPrefix(name, "assets/") {
		// Bundler output is content-hashed.
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	}

	h.server.ServeHTTP(w, r)
}
