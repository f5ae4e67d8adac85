package handler

import (
	"net/http"

	"go.uber.org/zap"

	"notesync/internal/metrics"
	"notesync/internal/note"
)

type SyncHandler struct {
	Svc     *note.Service
	Metrics *metrics.Collector
	Log     *zap.Logger
}

func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req note.SyncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.Svc.Sync(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.Log, err, noteNotFound)
		return
	}
	h.Metrics.RecordSync(note.CollectionName, res.Accepted, res.Rejected)
	h.Log.Info("sync",
		zap.String("collection", note.CollectionName),
		zap.Int("received", res.Accepted+res.Rejected),
		zap.Int("accepted", res.Accepted),
		zap.Int("rejected", res.Rejected),
		zap.Int("returned", len(res.Notes)),
	)
	writeJSON(w, http.StatusOK, res.SyncResponse)
}
