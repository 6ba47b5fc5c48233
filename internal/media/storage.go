// ABOUTME: Upload storage backends behind one interface: local filesystem and S3
// ABOUTME: Save returns the public path written into attachment records

package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidKey is returned for keys that would escape the upload root.
var ErrInvalidKey = errors.New("invalid storage key")

// ErrExists is returned when a key is already stored. Uploads are never overwritten.
var ErrExists = errors.New("storage key already exists")

// Storage persists uploaded files.
type Storage interface {
	// Save writes r under key and returns the public path and byte count.
	Save(ctx context.Context, key string, r io.Reader) (publicPath string, size int64, err error)
	// Delete removes the object stored under key.
	Delete(ctx context.Context, key string) error
	// KeyFromPath maps a public path from Save back to its key.
	KeyFromPath(publicPath string) (string, bool)
}

// LocalPrefix is where LocalStorage files are served.
const LocalPrefix = "/uploads/"

func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cleaned := path.Clean(key)
	if cleaned != key || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// LocalStorage stores uploads under a directory on disk.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates the root directory if needed.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &LocalStorage{root: root}, nil
}

// Root returns the upload directory.
func (s *LocalStorage) Root() string {
	return s.root
}

// Save implements Storage. Parent directories are created and existing files
// are never replaced.
func (s *LocalStorage) Save(ctx context.Context, key string, r io.Reader) (string, int64, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", 0, err
	}
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	full := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", 0, fmt.Errorf("creating upload directory: %w", err)
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		return "", 0, fmt.Errorf("%w: %s", ErrExists, key)
	}
	if err != nil {
		return "", 0, fmt.Errorf("creating upload file: %w", err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(full)
		return "", 0, fmt.Errorf("writing upload file: %w", err)
	}
	return LocalPrefix + key, n, nil
}

// Delete implements Storage. Missing files are not an error.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing upload file: %w", err)
	}
	return nil
}

// KeyFromPath implements Storage.
func (s *LocalStorage) KeyFromPath(publicPath string) (string, bool) {
	key, ok := strings.CutPrefix(publicPath, LocalPrefix)
	if !ok {
		return "", false
	}
	if _, err := cleanKey(key); err != nil {
		return "", false
	}
	return key, true
}

// Handler serves stored files under LocalPrefix. Directory listings are refused.
// Only media and PDF render inline; everything else downloads as an opaque
// attachment, and no stored file can run script on the site's origin.
func (s *LocalStorage) Handler() http.Handler {
	files := http.FileServer(filesOnly{http.Dir(s.root)})
	return http.StripPrefix(LocalPrefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setUploadHeaders(w.Header(), r.URL.Path)
		files.ServeHTTP(w, r)
	}))
}

// inlineTypes are the stored extensions served for display in the page.
var inlineTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"avif": "image/avif",
	"bmp":  "image/bmp",
	"mp4":  "video/mp4",
	"m4v":  "video/mp4",
	"webm": "video/webm",
	"mov":  "video/quicktime",
	"ogv":  "video/ogg",
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"aac":  "audio/aac",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
	"oga":  "audio/ogg",
	"flac": "audio/flac",
	"pdf":  "application/pdf",
}

func setUploadHeaders(h http.Header, name string) {
	h.Set("X-Content-Type-Options", "nosniff")
	ext := Ext(name)
	ct, inline := inlineTypes[ext]
	if !inline {
		h.Set("Content-Type", "application/octet-stream")
		h.Set("Content-Disposition", "attachment")
		h.Set("Content-Security-Policy", "sandbox")
		return
	}
	h.Set("Content-Type", ct)
	// browsers refuse to open PDFs in a sandboxed document
	if ext != "pdf" {
		h.Set("Content-Security-Policy", "sandbox")
	}
}

type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}

// RemovePaths deletes the objects behind public paths, ignoring failures.
// Used to clean up after a rejected submission.
func RemovePaths(ctx context.Context, s Storage, publicPaths []string) {
	for _, p := range publicPaths {
		if key, ok := s.KeyFromPath(p); ok {
			_ = s.Delete(ctx, key)
		}
	}
}
