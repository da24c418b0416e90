package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/mediahub/internal/metrics"
	"github.com/sakif/mediahub/internal/service"
)

// multipartMemory is how much of a multipart body is held in memory; the
// rest spills to temporary files.
const multipartMemory = 32 << 20

// FileHandler serves the shared upload area.
type FileHandler struct {
	files    *service.FileService
	pages    *Pages
	rec      metrics.Recorder
	maxBytes int64
	logger   *slog.Logger
}

// NewFileHandler creates a FileHandler. maxBytes caps the whole upload
// request body.
func NewFileHandler(files *service.FileService, pages *Pages, rec metrics.Recorder, maxBytes int64, logger *slog.Logger) *FileHandler {
	return &FileHandler{files: files, pages: pages, rec: rec, maxBytes: maxBytes, logger: logger}
}

// HandlePage lists the uploaded files.
//
// HTTP: GET /upload
func (h *FileHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, http.StatusOK, "", false)
}

// HandleUpload stores every file of the "files" field.
//
// HTTP: POST /file/upload (multipart/form-data)
//
// A name already in use is never overwritten: the upload is stored as
// "{stem} - {unix}{ext}" and the page says so.
func (h *FileHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.renderPage(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Upload is larger than %s", humanBytes(h.maxBytes)), true)
			return
		}
		h.renderPage(w, r, http.StatusBadRequest, "Invalid upload", true)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		h.renderPage(w, r, http.StatusBadRequest, "No files selected", true)
		return
	}

	uploads := make([]service.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.pages.renderError(w, r, fmt.Errorf("handler: opening part %q: %w", fh.Filename, err))
			return
		}
		defer f.Close()
		uploads = append(uploads, service.Upload{Name: fh.Filename, Body: f})
	}

	results, err := h.files.Upload(r.Context(), uploads)
	for _, res := range results {
		h.rec.Upload(res.Renamed())
	}
	if err != nil {
		if !isClientError(err) && len(results) == 0 {
			h.pages.renderError(w, r, err)
			return
		}
		status, _ := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("upload stopped midway",
				slog.Int("saved", len(results)),
				slog.String("error", err.Error()),
			)
		}
		// Files written before the failure stay, so the page names them.
		message := clientMessage(err)
		if len(results) > 0 {
			message = uploadMessage(results) + ". " + message
		}
		h.renderPage(w, r, status, message, true)
		return
	}

	h.renderPage(w, r, http.StatusOK, uploadMessage(results), false)
}

// HandleDownload sends a file as an attachment.
//
// HTTP: GET /file/download/{name}
func (h *FileHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")

	body, info, err := h.files.Open(r.Context(), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name}))

	// Local files are seekable, which gives range requests and
	// If-Modified-Since for free.
	if rs, ok := body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, info.Name, info.ModTime, rs)
		return
	}

	ctype := mime.TypeByExtension(extOf(info.Name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	if !info.ModTime.IsZero() {
		w.Header().Set("Last-Modified", info.ModTime.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("download interrupted",
			slog.String("name", info.Name),
			slog.String("error", err.Error()),
		)
	}
}

// HandleDelete removes a file and returns to the upload page.
//
// HTTP: GET /file/delete/{name}
func (h *FileHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.files.Delete(r.Context(), pathParam(r, "name")); err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/upload", http.StatusFound)
}

func (h *FileHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := statusFor(err); status == http.StatusInternalServerError {
		h.logger.Error("file request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, err)
}

func (h *FileHandler) renderPage(w http.ResponseWriter, r *http.Request, status int, message string, isError bool) {
	files, err := h.files.List(r.Context())
	if err != nil {
		h.pages.renderError(w, r, err)
		return
	}
	h.pages.render(w, r, status, PageUpload, View{
		Title:   "Upload",
		Files:   files,
		Message: message,
		IsError: isError,
	})
}

// uploadMessage names what was stored, showing the new name of anything
// that had to be renamed.
func uploadMessage(results []service.UploadResult) string {
	names := make([]string, 0, len(results))
	for _, res := range results {
		if res.Renamed() {
			names = append(names, fmt.Sprintf("%s (saved as %s)", res.Original, res.Stored))
			continue
		}
		names = append(names, res.Stored)
	}
	return "Uploaded: " + strings.Join(names, ", ")
}

// pathParam returns a chi URL parameter decoded. chi matches against
// RawPath when the request has one, so "%2F" and friends arrive escaped.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v
	}
	if decoded, err := url.PathUnescape(v); err == nil {
		return decoded
	}
	return v
}

func extOf(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[i:]
	}
	return ""
}
