// Package api provides the HTTP control handlers for the drishti pipeline.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ayusman/drishti/internal/app"
	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/coordinator"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/store"
)

// maxBodyBytes bounds request bodies; every request is a small JSON object.
const maxBodyBytes = 64 << 10

// Host is the control surface the handlers drive. *app.App implements it.
type Host interface {
	Status() app.Status
	NumModels() int
	LoadModel(modelID int, backend detector.Backend) bool
	LoadHistory(limit int) ([]store.LoadEvent, error)
	SetConfidenceThreshold(v float32) error
	SetThrottleInterval(ms int) error
	GetThrottleInterval() int
	SetDetectMode(mode int) error
	GetDetectMode() int
	OpenCamera(facing capture.Facing) bool
	CloseCamera() bool
	SetOutputWindow(name string) bool
}

// Handler serves the /api control routes.
type Handler struct {
	host Host
}

// NewHandler creates a Handler driving host.
func NewHandler(host Host) *Handler {
	return &Handler{host: host}
}

// Register adds the control routes to r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/status", h.status).Methods(http.MethodGet)

	r.HandleFunc("/api/model", h.loadModel).Methods(http.MethodPost)
	r.HandleFunc("/api/model/history", h.loadHistory).Methods(http.MethodGet)

	r.HandleFunc("/api/threshold", h.setThreshold).Methods(http.MethodPut)
	r.HandleFunc("/api/throttle", h.getThrottle).Methods(http.MethodGet)
	r.HandleFunc("/api/throttle", h.setThrottle).Methods(http.MethodPut)
	r.HandleFunc("/api/mode", h.getMode).Methods(http.MethodGet)
	r.HandleFunc("/api/mode", h.setMode).Methods(http.MethodPut)
	r.HandleFunc("/api/output", h.setOutput).Methods(http.MethodPut)

	r.HandleFunc("/api/camera/open", h.openCamera).Methods(http.MethodPost)
	r.HandleFunc("/api/camera/close", h.closeCamera).Methods(http.MethodPost)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.host.Status())
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeSetterError maps a rejected setting to 400, anything else to 500.
func writeSetterError(w http.ResponseWriter, err error) {
	if errors.Is(err, coordinator.ErrInvalidConfig) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// decodeBody decodes the request body into a loosely typed object. Values are
// coerced by the individual handlers so that both 1 and "1" are accepted.
func decodeBody(r *http.Request) (map[string]any, error) {
	var body map[string]any
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		return nil, errors.New("invalid request body")
	}
	return body, nil
}
