package http

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// SPAHandler serves the built frontend. Unknown paths fall back to
// index.html so client-side routing works on refresh.
type SPAHandler struct {
	dir        string
	fileServer http.Handler
}

// NewSPAHandler creates the static file handler rooted at dir.
func NewSPAHandler(dir string) *SPAHandler {
	return &SPAHandler{
		dir:        dir,
		fileServer: http.FileServer(http.Dir(dir)),
	}
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requested := filepath.Join(h.dir, filepath.Clean("/"+strings.TrimPrefix(r.URL.Path, "/")))
	if info, err := os.Stat(requested); err == nil && !info.IsDir() {
		h.fileServer.ServeHTTP(w, r)
		return
	}

	index := filepath.Join(h.dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, index)
}
