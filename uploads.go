package main

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// UploadStore writes uploaded images to a directory that is also served
// over HTTP.
type UploadStore struct {
	Dir         string
	PublicURL   string
	UniqueNames bool
}

type SavedUpload struct {
	Name string
	// Path is the location on disk.
	Path string
	// RelativePath is the slash separated path as stored in the database.
	RelativePath string
	PublicURL    string
}

func NewUploadStore(dir, publicURL string, uniqueNames bool) *UploadStore {
	return &UploadStore{
		Dir:         dir,
		PublicURL:   strings.TrimRight(publicURL, "/"),
		UniqueNames: uniqueNames,
	}
}

// URLPrefix is the route the upload directory is served under, with a
// trailing slash.
func (u *UploadStore) URLPrefix() string {
	if filepath.IsAbs(u.Dir) {
		return "/uploads/"
	}
	return "/" + strings.Trim(filepath.ToSlash(filepath.Clean(u.Dir)), "/") + "/"
}

// fileName strips any client supplied directory components.
func (u *UploadStore) fileName(original string) (string, error) {
	name := filepath.Base(filepath.FromSlash(strings.ReplaceAll(original, `\`, "/")))
	if name == "." || name == ".." || name == string(filepath.Separator) || name == "" {
		return "", fmt.Errorf("invalid upload file name %q", original)
	}
	if u.UniqueNames {
		name = uuid.NewString() + "_" + name
	}
	return name, nil
}

func (u *UploadStore) Save(header *multipart.FileHeader) (SavedUpload, error) {
	name, err := u.fileName(header.Filename)
	if err != nil {
		return SavedUpload{}, err
	}

	src, err := header.Open()
	if err != nil {
		return SavedUpload{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	return u.write(name, src)
}

func (u *UploadStore) write(name string, src io.Reader) (SavedUpload, error) {
	if err := os.MkdirAll(u.Dir, 0o755); err != nil {
		return SavedUpload{}, fmt.Errorf("failed to create upload directory: %w", err)
	}

	path := filepath.Join(u.Dir, name)
	dst, err := os.Create(path)
	if err != nil {
		return SavedUpload{}, fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return SavedUpload{}, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		return SavedUpload{}, fmt.Errorf("failed to write %s: %w", path, err)
	}

	rel := strings.TrimPrefix(u.URLPrefix(), "/") + name
	return SavedUpload{
		Name:         name,
		Path:         path,
		RelativePath: rel,
		PublicURL:    u.PublicURL + "/" + rel,
	}, nil
}

// Handler serves stored uploads read-only. Directory listings are refused.
func (u *UploadStore) Handler() http.Handler {
	files := http.StripPrefix(u.URLPrefix(), http.FileServer(http.Dir(u.Dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
