package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"notesync/internal/collection"
	"notesync/internal/metrics"
	"notesync/internal/note"
)

const noteNotFound = "Note not found"

type NoteHandler struct {
	Svc     *note.Service
	Metrics *metrics.Collector
	Log     *zap.Logger
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	notes, err := h.Svc.All(r.Context())
	if err != nil {
		writeServiceError(w, h.Log, err, noteNotFound)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	n, err := h.Svc.Get(r.Context(), pathParam(r, "key"))
	if err != nil {
		writeServiceError(w, h.Log, err, noteNotFound)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// Put answers 200 with the stored note whether or not the write was newer
// than what the server had.
func (h *NoteHandler) Put(w http.ResponseWriter, r *http.Request) {
	key := pathParam(r, "key")

	var in note.Note
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, applied, err := h.Svc.Upsert(r.Context(), key, in)
	if err != nil {
		writeServiceError(w, h.Log, err, noteNotFound)
		return
	}
	h.Metrics.RecordUpsert(note.CollectionName, applied)
	writeJSON(w, http.StatusOK, stored)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key := pathParam(r, "key")

	removed, err := h.Svc.Delete(r.Context(), key)
	if err != nil {
		writeServiceError(w, h.Log, err, noteNotFound)
		return
	}
	if removed {
		h.Metrics.RecordDelete(note.CollectionName)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "deleted",
		"key":     key,
		"dateKey": key,
	})
}

func (h *NoteHandler) Since(w http.ResponseWriter, r *http.Request) {
	notes, err := h.Svc.Since(r.Context(), pathParam(r, "timestamp"))
	if err != nil {
		if errors.Is(err, collection.ErrInvalidTimestamp) {
			writeError(w, http.StatusBadRequest, "Invalid timestamp format")
			return
		}
		writeServiceError(w, h.Log, err, noteNotFound)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *NoteHandler) Tags(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("q"))

	limit := 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	out, err := h.Svc.Tags(r.Context(), prefix, limit)
	if err != nil {
		writeServiceError(w, h.Log, err, noteNotFound)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
