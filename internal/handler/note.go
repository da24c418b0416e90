package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/mediahub/internal/service"
)

// maxNoteRequest leaves room for form or JSON encoding around the note.
const maxNoteRequest = 4*service.MaxNoteBytes + 4<<10

// NoteHandler serves the webpad: one shared scratch note.
type NoteHandler struct {
	notes  *service.NoteService
	pages  *Pages
	logger *slog.Logger
}

func NewNoteHandler(notes *service.NoteService, pages *Pages, logger *slog.Logger) *NoteHandler {
	return &NoteHandler{notes: notes, pages: pages, logger: logger}
}

// HandlePage shows the note in an editable textarea.
//
// HTTP: GET /webpad
func (h *NoteHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	note, err := h.notes.Get(r.Context())
	if err != nil {
		h.pages.renderError(w, r, err)
		return
	}
	h.pages.render(w, r, http.StatusOK, PageWebpad, View{Title: "Webpad", Note: note.Text})
}

// HandleSave replaces the note from the page form.
//
// HTTP: POST /webpad/save
// FORM: textarea
func (h *NoteHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxNoteRequest)
	if err := r.ParseForm(); err != nil {
		h.pages.render(w, r, http.StatusBadRequest, PageWebpad, View{
			Title: "Webpad", Message: "Note is too large", IsError: true,
		})
		return
	}

	text := r.PostFormValue("textarea")
	if _, err := h.notes.Save(r.Context(), text); err != nil {
		if !isClientError(err) {
			h.pages.renderError(w, r, err)
			return
		}
		status, _ := statusFor(err)
		h.pages.render(w, r, status, PageWebpad, View{
			Title: "Webpad", Note: text, Message: clientMessage(err), IsError: true,
		})
		return
	}
	http.Redirect(w, r, "/webpad", http.StatusSeeOther)
}

// HandleClear empties the note.
//
// HTTP: POST /webpad/clear
func (h *NoteHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.Clear(r.Context()); err != nil {
		h.pages.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/webpad", http.StatusSeeOther)
}

type noteRequest struct {
	Text string `json:"text"`
}

type replyResponse struct {
	Reply string `json:"reply"`
}

// HandleSaveAPI replaces the note from a JSON body. The page's autosave
// script calls it.
//
// HTTP: POST /api/webpad
// REQUEST BODY: {"text": "..."}
// RESPONSE: {"reply": "ok"}
func (h *NoteHandler) HandleSaveAPI(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxNoteRequest)

	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid webpad JSON", slog.String("error", err.Error()))
		badRequest(w, "Invalid JSON body")
		return
	}

	if _, err := h.notes.Save(r.Context(), req.Text); err != nil {
		if !isClientError(err) {
			h.logger.Error("saving note failed", slog.String("error", err.Error()))
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, replyResponse{Reply: "ok"})
}
