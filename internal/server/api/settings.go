package api

import (
	"net/http"

	"github.com/spf13/cast"
)

type throttleResponse struct {
	IntervalMs int `json:"interval_ms"`
}

type modeResponse struct {
	Mode int `json:"mode"`
}

// setThreshold handles PUT /api/threshold {value}.
func (h *Handler) setThreshold(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := cast.ToFloat32E(body["value"])
	if err != nil || body["value"] == nil {
		writeError(w, http.StatusBadRequest, "value must be a number")
		return
	}

	if err := h.host.SetConfidenceThreshold(v); err != nil {
		writeSetterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float32{"value": v})
}

func (h *Handler) getThrottle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, throttleResponse{IntervalMs: h.host.GetThrottleInterval()})
}

// setThrottle handles PUT /api/throttle {interval_ms}.
func (h *Handler) setThrottle(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ms, err := cast.ToIntE(body["interval_ms"])
	if err != nil || body["interval_ms"] == nil {
		writeError(w, http.StatusBadRequest, "interval_ms must be an integer")
		return
	}

	if err := h.host.SetThrottleInterval(ms); err != nil {
		writeSetterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, throttleResponse{IntervalMs: ms})
}

func (h *Handler) getMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modeResponse{Mode: h.host.GetDetectMode()})
}

// setMode handles PUT /api/mode {mode}.
func (h *Handler) setMode(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := cast.ToIntE(body["mode"])
	if err != nil || body["mode"] == nil {
		writeError(w, http.StatusBadRequest, "mode must be an integer")
		return
	}

	if err := h.host.SetDetectMode(mode); err != nil {
		writeSetterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modeResponse{Mode: mode})
}

// setOutput handles PUT /api/output {surface}.
func (h *Handler) setOutput(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := cast.ToString(body["surface"])
	if name == "" {
		writeError(w, http.StatusBadRequest, "surface is required")
		return
	}

	if !h.host.SetOutputWindow(name) {
		writeError(w, http.StatusBadRequest, "unknown surface: "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"surface": name})
}
