package handlers

import (
	"net/http"
	"os"
	"strings"
)

// ServeMedia serves a stored artifact by its ref. Directories are never listed.
func (h *Handlers) ServeMedia(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimPrefix(r.URL.Path, "/media/")
	path, err := h.layout.Path(ref)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, path)
}
