package main

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileHeader round-trips content through a multipart form so the returned
// header can be opened like one from a real request.
func fileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["image"][0]
}

func TestUploadURLPrefix(t *testing.T) {
	tests := []struct {
		dir  string
		want string
	}{
		{"static/uploads", "/static/uploads/"},
		{"./static/uploads/", "/static/uploads/"},
		{"images", "/images/"},
		{filepath.Join(t.TempDir(), "up"), "/uploads/"},
	}
	for _, tt := range tests {
		u := NewUploadStore(tt.dir, "http://localhost:5000", false)
		assert.Equal(t, tt.want, u.URLPrefix(), tt.dir)
	}
}

func TestUploadSaveRelativeDir(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	u := NewUploadStore("static/uploads", "http://example.test/", false)
	saved, err := u.Save(fileHeader(t, "eye.jpg", []byte("jpeg bytes")))
	require.NoError(t, err)

	assert.Equal(t, "eye.jpg", saved.Name)
	assert.Equal(t, "static/uploads/eye.jpg", saved.RelativePath)
	assert.Equal(t, "http://example.test/static/uploads/eye.jpg", saved.PublicURL)

	data, err := os.ReadFile(filepath.Join("static", "uploads", "eye.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
}

func TestUploadSaveStripsDirectories(t *testing.T) {
	dir := t.TempDir()
	u := NewUploadStore(dir, "http://localhost:5000", false)

	for _, name := range []string{"../../etc/evil.png", `..\..\evil.png`, "/abs/evil.png"} {
		saved, err := u.Save(fileHeader(t, name, []byte("x")))
		require.NoError(t, err, name)
		assert.Equal(t, "evil.png", saved.Name, name)
		assert.Equal(t, filepath.Join(dir, "evil.png"), saved.Path, name)
	}
}

func TestUploadSaveUniqueNames(t *testing.T) {
	u := NewUploadStore(t.TempDir(), "http://localhost:5000", true)

	first, err := u.Save(fileHeader(t, "eye.png", []byte("first")))
	require.NoError(t, err)
	second, err := u.Save(fileHeader(t, "eye.png", []byte("second")))
	require.NoError(t, err)

	assert.NotEqual(t, first.Name, second.Name)
	assert.True(t, strings.HasSuffix(first.Name, "_eye.png"))

	data, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestUploadSameNameOverwritesWithoutUniqueNames(t *testing.T) {
	u := NewUploadStore(t.TempDir(), "http://localhost:5000", false)

	_, err := u.Save(fileHeader(t, "eye.png", []byte("first")))
	require.NoError(t, err)
	saved, err := u.Save(fileHeader(t, "eye.png", []byte("second")))
	require.NoError(t, err)

	data, err := os.ReadFile(saved.Path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestUploadHandlerRefusesListing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("png"), 0o644))
	u := NewUploadStore(dir, "http://localhost:5000", false)
	h := u.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/a.png", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
