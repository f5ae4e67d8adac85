package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"notesync/internal/collection"
	"notesync/internal/metrics"
	"notesync/internal/note"
)

const itemNotFound = "Item not found"

// ItemHandler serves any collection named in the path. Items pass through
// as raw JSON.
type ItemHandler struct {
	Svc     *collection.Service
	Metrics *metrics.Collector
	Log     *zap.Logger
}

// syncBody takes the batch under "items" or, for older clients, "notes".
type syncBody struct {
	Items        []json.RawMessage `json:"items"`
	Notes        []json.RawMessage `json:"notes"`
	LastSyncTime *string           `json:"lastSyncTime"`
}

func (h *ItemHandler) Collections(w http.ResponseWriter, r *http.Request) {
	names, err := h.Svc.Collections(r.Context())
	if err != nil {
		writeServiceError(w, h.Log, err, itemNotFound)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Svc.All(r.Context(), pathParam(r, "collection"))
	if err != nil {
		writeServiceError(w, h.Log, err, itemNotFound)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.Svc.Get(r.Context(), pathParam(r, "collection"), pathParam(r, "key"))
	if err != nil {
		writeServiceError(w, h.Log, err, itemNotFound)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *ItemHandler) Put(w http.ResponseWriter, r *http.Request) {
	name, key := pathParam(r, "collection"), pathParam(r, "key")

	var in json.RawMessage
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, applied, err := h.Svc.Upsert(r.Context(), name, key, in)
	if err != nil {
		writeServiceError(w, h.Log, err, itemNotFound)
		return
	}
	h.Metrics.RecordUpsert(name, applied)
	writeJSON(w, http.StatusOK, stored)
}

func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name, key := pathParam(r, "collection"), pathParam(r, "key")

	removed, err := h.Svc.Delete(r.Context(), name, key)
	if err != nil {
		writeServiceError(w, h.Log, err, itemNotFound)
		return
	}
	if removed {
		h.Metrics.RecordDelete(name)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "key": key})
}

func (h *ItemHandler) Since(w http.ResponseWriter, r *http.Request) {
	items, err := h.Svc.Since(r.Context(), pathParam(r, "collection"), pathParam(r, "timestamp"))
	if err != nil {
		if errors.Is(err, collection.ErrInvalidTimestamp) {
			writeError(w, http.StatusBadRequest, "Invalid timestamp format")
			return
		}
		writeServiceError(w, h.Log, err, itemNotFound)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Sync answers with the items under "items", repeated under "notes" for the
// notes collection.
func (h *ItemHandler) Sync(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "collection")

	var body syncBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	incoming := body.Items
	if len(incoming) == 0 && len(body.Notes) > 0 {
		incoming = body.Notes
	}

	res, err := h.Svc.Sync(r.Context(), name, collection.SyncRequest{
		Items:        incoming,
		LastSyncTime: body.LastSyncTime,
	})
	if err != nil {
		writeServiceError(w, h.Log, err, itemNotFound)
		return
	}
	h.Metrics.RecordSync(name, res.Accepted, res.Rejected)
	h.Log.Info("sync",
		zap.String("collection", name),
		zap.Int("received", len(incoming)),
		zap.Int("accepted", res.Accepted),
		zap.Int("rejected", res.Rejected),
		zap.Int("returned", len(res.Items)),
	)

	resp := map[string]any{
		"items":      res.Items,
		"serverTime": res.ServerTime,
	}
	if name == note.CollectionName {
		resp["notes"] = res.Items
	}
	writeJSON(w, http.StatusOK, resp)
}
