package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/venthub/internal/device"
)

// angleRequest carries a target as degrees or as a 0..100 opening.
// Exactly one must be set.
type angleRequest struct {
	Angle   *int `json:"angle"`
	Percent *int `json:"percent"`
}

func (a angleRequest) resolve() (int, bool) {
	switch {
	case a.Angle != nil && a.Percent == nil:
		return *a.Angle, true
	case a.Percent != nil && a.Angle == nil:
		return device.AngleFromPercent(*a.Percent), true
	default:
		return 0, false
	}
}

// decodeAngle reads an angleRequest body, writing a 400 on failure.
func decodeAngle(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req angleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return 0, false
	}
	angle, ok := req.resolve()
	if !ok {
		writeBadRequest(w, "exactly one of angle or percent is required")
		return 0, false
	}
	return angle, true
}

// handleListDevices returns devices, optionally filtered.
//
// Query parameters:
//   - room: only devices assigned to this room
//   - floor: only devices assigned to this floor
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hubFor(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	reg := h.Registry()

	var (
		devices []device.Device
		err     error
	)
	switch q := r.URL.Query(); {
	case q.Get("room") != "":
		devices, err = reg.ListByRoom(ctx, q.Get("room"))
	case q.Get("floor") != "":
		devices, err = reg.ListByFloor(ctx, q.Get("floor"))
	default:
		devices, err = reg.ListAll(ctx)
	}
	if err != nil {
		writeServiceError(w, err, "failed to list devices")
		return
	}
	if devices == nil {
		devices = []device.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hubFor(w, r)
	if !ok {
		return
	}
	d, err := h.Registry().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleDeleteDevice removes a device by ID.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hubFor(w, r)
	if !ok {
		return
	}
	if err := h.DeleteDevice(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err, "failed to delete device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetDeviceAngle commands one vent.
func (s *Server) handleSetDeviceAngle(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hubFor(w, r)
	if !ok {
		return
	}
	angle, ok := decodeAngle(w, r)
	if !ok {
		return
	}
	d, err := h.SetDeviceAngle(r.Context(), chi.URLParam(r, "id"), angle)
	if err != nil {
		writeServiceError(w, err, "failed to set angle")
		return
	}
	writeJSON(w, http.StatusAccepted, d)
}

type assignmentRequest struct {
	Room  string `json:"room"`
	Floor string `json:"floor"`
}

// handleAssignDevice sets a device's room and floor.
func (s *Server) handleAssignDevice(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hubFor(w, r)
	if !ok {
		return
	}
	var req assignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	d, err := h.AssignDevice(r.Context(), chi.URLParam(r, "id"), req.Room, req.Floor)
	if err != nil {
		writeServiceError(w, err, "failed to assign device")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleRefreshDevice probes one device now.
func (s *Server) handleRefreshDevice(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hubFor(w, r)
	if !ok {
		return
	}
	d, err := h.RefreshDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "failed to refresh device")
		return
	}
	writeJSON(w, http.StatusOK, d)
}
