package api

import (
	"fmt"
	"net/http"

	"github.com/spf13/cast"

	"github.com/ayusman/drishti/internal/detector"
)

type loadModelResponse struct {
	ModelID int    `json:"model_id"`
	Backend string `json:"backend"`
	Loaded  bool   `json:"loaded"`
}

// loadModel handles POST /api/model {model_id, backend}. Invalid arguments are
// rejected with 400; a load that fails with valid arguments with 422.
func (h *Handler) loadModel(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	raw, ok := body["model_id"]
	if !ok {
		writeError(w, http.StatusBadRequest, "model_id is required")
		return
	}
	modelID, err := cast.ToIntE(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "model_id must be an integer")
		return
	}
	if modelID < 0 || modelID >= h.host.NumModels() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("model_id must be within [0, %d)", h.host.NumModels()))
		return
	}

	backend := detector.BackendCPU
	if raw, ok := body["backend"]; ok {
		backend, err = detector.ParseBackend(cast.ToString(raw))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if !h.host.LoadModel(modelID, backend) {
		writeError(w, http.StatusUnprocessableEntity, "failed to load model")
		return
	}

	writeJSON(w, http.StatusOK, loadModelResponse{
		ModelID: modelID,
		Backend: backend.String(),
		Loaded:  h.host.Status().Detector.Loaded,
	})
}

// loadHistory handles GET /api/model/history?limit=n.
func (h *Handler) loadHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := h.host.LoadHistory(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loads": events})
}
