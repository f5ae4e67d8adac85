package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"notesync/internal/collection"
)

// SchemaHandler manages the JSON Schema registered per collection.
type SchemaHandler struct {
	Svc *collection.Service
	Log *zap.Logger
}

func (h *SchemaHandler) List(w http.ResponseWriter, r *http.Request) {
	schemas, err := h.Svc.Schemas(r.Context())
	if err != nil {
		writeServiceError(w, h.Log, err, "")
		return
	}
	writeJSON(w, http.StatusOK, schemas)
}

func (h *SchemaHandler) Get(w http.ResponseWriter, r *http.Request) {
	raw, err := h.Svc.Schema(r.Context(), pathParam(r, "collection"))
	if err != nil {
		writeServiceError(w, h.Log, err, "")
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

func (h *SchemaHandler) Put(w http.ResponseWriter, r *http.Request) {
	var in json.RawMessage
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, err := h.Svc.PutSchema(r.Context(), pathParam(r, "collection"), in)
	if err != nil {
		writeServiceError(w, h.Log, err, "")
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (h *SchemaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "collection")
	if err := h.Svc.DeleteSchema(r.Context(), name); err != nil {
		writeServiceError(w, h.Log, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "collection": name})
}
