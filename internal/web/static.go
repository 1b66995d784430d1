package web

import (
	"net/http"
	"path"

	"github.com/spf13/afero"
)

// staticHandler serves the front-end bundle. Directories without an
// index.html answer 404 instead of a listing.
func staticHandler(fs afero.Fs) http.Handler {
	files := http.FileServer(noListingFS{afero.NewHttpFs(afero.NewReadOnlyFs(fs))})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		files.ServeHTTP(w, r)
	})
}

type noListingFS struct {
	fs http.FileSystem
}

func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !info.IsDir() {
		return f, nil
	}
	index, err := n.fs.Open(path.Join(name, "index.html"))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	_ = index.Close()
	return f, nil
}
