package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/mediahub/internal/filestore"
	"github.com/sakif/mediahub/internal/handler"
	"github.com/sakif/mediahub/internal/service"
)

func newFileHandler(h *harness, maxBytes int64) *handler.FileHandler {
	return handler.NewFileHandler(h.files, h.pages, h.rec, maxBytes, testLogger())
}

func storedNames(t *testing.T, h *harness) []string {
	t.Helper()
	files, err := h.store.List(t.Context())
	require.NoError(t, err)
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return names
}

func TestUpload(t *testing.T) {
	h := newHarness(t)
	fh := newFileHandler(h, 1<<20)

	rr := httptest.NewRecorder()
	fh.HandleUpload(rr, multipartRequest(t, "/file/upload",
		part{"a.txt", "alpha"},
		part{"b.bin", "beta"},
	))

	assert.Equal(t, http.StatusOK, rr.Code)
	page, view := h.renderer.last()
	assert.Equal(t, handler.PageUpload, page)
	assert.Equal(t, "Uploaded: a.txt, b.bin", view.Message)
	assert.False(t, view.IsError)
	assert.Len(t, view.Files, 2, "page lists the files after the upload")
	assert.Equal(t, []string{"a.txt", "b.bin"}, storedNames(t, h))
	assert.Equal(t, []bool{false, false}, h.rec.uploads)
}

func TestUpload_CollisionRenames(t *testing.T) {
	h := newHarness(t)
	fh := newFileHandler(h, 1<<20)

	rr := httptest.NewRecorder()
	fh.HandleUpload(rr, multipartRequest(t, "/file/upload", part{"a.txt", "first"}))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	fh.HandleUpload(rr, multipartRequest(t, "/file/upload", part{"a.txt", "second"}))
	require.Equal(t, http.StatusOK, rr.Code)

	_, view := h.renderer.last()
	assert.Equal(t, "Uploaded: a.txt (saved as a - 1700000000.txt)", view.Message)
	assert.Equal(t, []string{"a - 1700000000.txt", "a.txt"}, storedNames(t, h))
	assert.Equal(t, []bool{false, true}, h.rec.uploads)
}

func TestUpload_NoFiles(t *testing.T) {
	h := newHarness(t)

	rr := httptest.NewRecorder()
	newFileHandler(h, 1<<20).HandleUpload(rr, multipartRequest(t, "/file/upload"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	_, view := h.renderer.last()
	assert.Equal(t, "No files selected", view.Message)
	assert.True(t, view.IsError)
}

func TestUpload_NotMultipart(t *testing.T) {
	h := newHarness(t)

	rr := httptest.NewRecorder()
	newFileHandler(h, 1<<20).HandleUpload(rr, jsonRequest("/file/upload", `{}`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpload_TooLarge(t *testing.T) {
	h := newHarness(t)

	rr := httptest.NewRecorder()
	newFileHandler(h, 512).HandleUpload(rr, multipartRequest(t, "/file/upload",
		part{"big.bin", strings.Repeat("x", 4096)},
	))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Empty(t, storedNames(t, h))
}

func TestUpload_RejectsHiddenNames(t *testing.T) {
	h := newHarness(t)

	rr := httptest.NewRecorder()
	newFileHandler(h, 1<<20).HandleUpload(rr, multipartRequest(t, "/file/upload",
		part{"ok.txt", "fine"},
		part{".env", "SECRET=1"},
	))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, storedNames(t, h), "a bad name rejects the whole batch")
}

// diskFullStore fails every write of one name.
type diskFullStore struct {
	*filestore.LocalStore
	failOn string
}

func (s diskFullStore) Create(ctx context.Context, name string, r io.Reader) (int64, error) {
	if name == s.failOn {
		return 0, errors.New("write: no space left on device")
	}
	return s.LocalStore.Create(ctx, name, r)
}

func TestUpload_FailureMidwayNamesSavedFiles(t *testing.T) {
	h := newHarness(t)
	store := diskFullStore{LocalStore: h.store, failOn: "b.txt"}
	files := service.NewFileService(store, filestore.NewNamer(func() time.Time { return fixedNow }), testLogger())
	fh := handler.NewFileHandler(files, h.pages, h.rec, 1<<20, testLogger())

	rr := httptest.NewRecorder()
	fh.HandleUpload(rr, multipartRequest(t, "/file/upload",
		part{"a.txt", "alpha"},
		part{"b.txt", "beta"},
	))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	page, view := h.renderer.last()
	assert.Equal(t, handler.PageUpload, page)
	assert.True(t, view.IsError)
	assert.Equal(t, "Uploaded: a.txt. An internal error occurred", view.Message)
	assert.NotContains(t, view.Message, "no space")
	assert.Equal(t, []string{"a.txt"}, storedNames(t, h))
	assert.Equal(t, []bool{false}, h.rec.uploads)
}

func TestDownload(t *testing.T) {
	h := newHarness(t)
	fh := newFileHandler(h, 1<<20)
	fh.HandleUpload(httptest.NewRecorder(), multipartRequest(t, "/file/upload", part{"report final.txt", "hello world"}))

	rr := httptest.NewRecorder()
	req := withParam(httptest.NewRequest(http.MethodGet, "/file/download/report%20final.txt", nil), "name", "report final.txt")
	fh.HandleDownload(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hello world", rr.Body.String())
	assert.Equal(t, `attachment; filename="report final.txt"`, rr.Header().Get("Content-Disposition"))
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/plain")
	assert.NotEmpty(t, rr.Header().Get("Last-Modified"))
}

func TestDownload_Range(t *testing.T) {
	h := newHarness(t)
	fh := newFileHandler(h, 1<<20)
	fh.HandleUpload(httptest.NewRecorder(), multipartRequest(t, "/file/upload", part{"a.txt", "0123456789"}))

	rr := httptest.NewRecorder()
	req := withParam(httptest.NewRequest(http.MethodGet, "/file/download/a.txt", nil), "name", "a.txt")
	req.Header.Set("Range", "bytes=2-4")
	fh.HandleDownload(rr, req)

	assert.Equal(t, http.StatusPartialContent, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	assert.Equal(t, "234", string(body))
}

func TestDownload_Missing(t *testing.T) {
	h := newHarness(t)

	rr := httptest.NewRecorder()
	req := withParam(httptest.NewRequest(http.MethodGet, "/file/download/nope.txt", nil), "name", "nope.txt")
	newFileHandler(h, 1<<20).HandleDownload(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	var body handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "not_found", body.Error)
}

func TestDownload_EscapedSeparatorIsRejected(t *testing.T) {
	h := newHarness(t)

	// chi hands over the raw segment when the path has an escaped slash
	rr := httptest.NewRecorder()
	req := withParam(httptest.NewRequest(http.MethodGet, "/file/download/..%2Fsecret", nil), "name", "..%2Fsecret")
	newFileHandler(h, 1<<20).HandleDownload(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteFile(t *testing.T) {
	h := newHarness(t)
	fh := newFileHandler(h, 1<<20)
	fh.HandleUpload(httptest.NewRecorder(), multipartRequest(t, "/file/upload", part{"a.txt", "x"}))

	rr := httptest.NewRecorder()
	fh.HandleDelete(rr, withParam(httptest.NewRequest(http.MethodGet, "/file/delete/a.txt", nil), "name", "a.txt"))

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/upload", rr.Header().Get("Location"))
	assert.Empty(t, storedNames(t, h))

	rr = httptest.NewRecorder()
	fh.HandleDelete(rr, withParam(httptest.NewRequest(http.MethodGet, "/file/delete/a.txt", nil), "name", "a.txt"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUploadPage(t *testing.T) {
	h := newHarness(t)
	fh := newFileHandler(h, 1<<20)
	fh.HandleUpload(httptest.NewRecorder(), multipartRequest(t, "/file/upload", part{"a.txt", "x"}))

	rr := httptest.NewRecorder()
	fh.HandlePage(rr, httptest.NewRequest(http.MethodGet, "/upload", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	_, view := h.renderer.last()
	require.Len(t, view.Files, 1)
	assert.Equal(t, "a.txt", view.Files[0].Name)
	assert.Empty(t, view.Message)
}
