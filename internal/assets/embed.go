// Package assets serves the stylesheet, scripts and landing page embedded
// via go:embed. Files are addressed through URL, which appends a content
// version so browsers can cache them for good.
package assets

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
)

//go:embed all:static
var staticFS embed.FS

// Prefix is where FileServer is mounted.
const Prefix = "/static/"

// versions maps a static file name to a short hash of its content.
var versions = map[string]string{}

func init() {
	err := fs.WalkDir(staticFS, "static", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := staticFS.ReadFile(p)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		versions[strings.TrimPrefix(p, "static/")] = hex.EncodeToString(sum[:4])
		return nil
	})
	if err != nil {
		slog.Error("failed to index static assets", "error", err)
	}
}

func contentType(ext string) string {
	switch ext {
	case ".js":
		return "application/javascript"
	case ".css":
		return "text/css; charset=utf-8"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// versioned reports whether r asks for the exact content URL returns, which
// never changes for a given build.
func versioned(r *http.Request) bool {
	name := strings.TrimPrefix(r.URL.Path, "/")
	v := r.URL.Query().Get("v")
	return v != "" && v == versions[name]
}

// URL returns the public URL of an embedded file, versioned by content.
// Unknown names are returned unversioned.
func URL(name string) string {
	name = strings.TrimPrefix(name, "/")
	if v, ok := versions[name]; ok {
		return Prefix + name + "?v=" + v
	}
	return Prefix + name
}

// FileServer returns an http.Handler that serves embedded files from static/.
// Requests carrying the current version get immutable cache headers; the rest
// get no-cache.
// The handler expects paths relative to the static root (strip Prefix before calling).
func FileServer() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("assets: failed to create sub filesystem: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ext := strings.ToLower(path.Ext(r.URL.Path))
		if ext != "" {
			w.Header().Set("Content-Type", contentType(ext))
		}

		if versioned(r) {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		} else {
			w.Header().Set("Cache-Control", "no-cache")
		}

		fileServer.ServeHTTP(w, r)
	})
}

// Index serves the landing page that hosts the client application.
func Index() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := staticFS.ReadFile("static/index.html")
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(data)
	})
}
