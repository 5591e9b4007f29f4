package api

import (
	"net/http"

	"github.com/spf13/cast"

	"github.com/ayusman/drishti/internal/capture"
)

// openCamera handles POST /api/camera/open {facing}. facing is "front",
// "back", 0 or 1 and defaults to front.
func (h *Handler) openCamera(w http.ResponseWriter, r *http.Request) {
	facing := capture.FacingFront
	if r.ContentLength != 0 {
		body, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if raw, ok := body["facing"]; ok {
			facing, err = capture.ParseFacing(cast.ToString(raw))
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
	}

	if !h.host.OpenCamera(facing) {
		writeError(w, http.StatusUnprocessableEntity, "failed to open "+facing.String()+" camera")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"open": true, "facing": facing.String()})
}

// closeCamera handles POST /api/camera/close.
func (h *Handler) closeCamera(w http.ResponseWriter, r *http.Request) {
	if !h.host.CloseCamera() {
		writeError(w, http.StatusInternalServerError, "failed to close camera")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"open": false})
}
