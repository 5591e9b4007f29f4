package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ayusman/drishti/internal/display"
)

// StreamHandler serves the MJPEG stream of a named output surface.
type StreamHandler struct {
	surfaces *display.Registry
}

// NewStreamHandler creates a new StreamHandler over the given surfaces.
func NewStreamHandler(surfaces *display.Registry) *StreamHandler {
	return &StreamHandler{surfaces: surfaces}
}

// ServeHTTP streams the surface named by the {name} route variable. A
// ?snapshot=1 query returns only the latest frame as a single JPEG.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	surface, ok := h.surfaces.Get(name)
	if !ok {
		http.Error(w, "unknown surface: "+name, http.StatusNotFound)
		return
	}

	if r.URL.Query().Get("snapshot") != "" {
		jpeg := surface.Snapshot()
		if len(jpeg) == 0 {
			http.Error(w, "no frame yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(jpeg)
		return
	}

	surface.ServeHTTP(w, r)
}
