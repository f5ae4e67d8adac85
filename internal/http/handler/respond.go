package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"notesync/internal/collection"
	"notesync/internal/note"
)

const maxBodyBytes = 10 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// pathParam returns the chi URL parameter decoded exactly once. chi routes
// on RawPath when the request carried escapes the default encoding would
// not reproduce (such as %2F), and only then is the parameter still
// escaped. Otherwise it already is the decoded key, and a literal "%41"
// in it must stay as is.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return raw
	}
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// writeServiceError maps collection and note errors to statuses, answering
// a missing item with notFound. Anything unrecognised is logged and
// reported as a 500.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error, notFound string) {
	var (
		verr   *note.ValidationError
		schErr *collection.SchemaError
	)
	switch {
	case errors.Is(err, collection.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, collection.ErrNoSchema):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, collection.ErrInvalidCollection):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &verr), errors.As(err, &schErr),
		errors.Is(err, collection.ErrInvalidTimestamp),
		errors.Is(err, collection.ErrInvalidItem),
		errors.Is(err, collection.ErrInvalidSchema):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server error")
	}
}
