package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/venthub/internal/device"
	"github.com/nerrad567/venthub/internal/group"
)

// groupResponse reports a group command. Updated is never null so callers
// can compare its length with Requested directly.
type groupResponse struct {
	TargetType string          `json:"target_type"`
	Target     string          `json:"target,omitempty"`
	Angle      int             `json:"angle"`
	Requested  int             `json:"requested"`
	Updated    []device.Device `json:"updated"`
	Partial    bool            `json:"partial"`
}

func newGroupResponse(res group.Result) groupResponse {
	updated := res.Updated
	if updated == nil {
		updated = []device.Device{}
	}
	return groupResponse{
		TargetType: res.TargetType,
		Target:     res.Target,
		Angle:      res.Angle,
		Requested:  res.Requested,
		Updated:    updated,
		Partial:    res.Partial(),
	}
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hubFor(w, r)
	if !ok {
		return
	}
	rooms, err := h.Registry().ListRooms(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to list rooms")
		return
	}
	if rooms == nil {
		rooms = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms, "count": len(rooms)})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hubFor(w, r)
	if !ok {
		return
	}
	summary, err := h.Groups().GetRoomSummary(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		writeServiceError(w, err, "failed to summarise room")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListFloors(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hubFor(w, r)
	if !ok {
		return
	}
	floors, err := h.Registry().ListFloors(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to list floors")
		return
	}
	if floors == nil {
		floors = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"floors": floors, "count": len(floors)})
}

func (s *Server) handleGetFloor(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hubFor(w, r)
	if !ok {
		return
	}
	summary, err := h.Groups().GetFloorSummary(r.Context(), chi.URLParam(r, "floor"))
	if err != nil {
		writeServiceError(w, err, "failed to summarise floor")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSetRoomAngle(w http.ResponseWriter, r *http.Request) {
	s.groupCommand(w, r, group.TargetRoom, chi.URLParam(r, "room"))
}

func (s *Server) handleSetFloorAngle(w http.ResponseWriter, r *http.Request) {
	s.groupCommand(w, r, group.TargetFloor, chi.URLParam(r, "floor"))
}

func (s *Server) handleSetAllAngle(w http.ResponseWriter, r *http.Request) {
	s.groupCommand(w, r, group.TargetAll, "")
}

// groupCommand decodes an angle and fans it out. Device failures show up
// as Requested > len(Updated); only storage failures are errors.
func (s *Server) groupCommand(w http.ResponseWriter, r *http.Request, targetType, target string) {
	h, ok := s.hubFor(w, r)
	if !ok {
		return
	}
	angle, ok := decodeAngle(w, r)
	if !ok {
		return
	}
	res, err := h.SetGroupAngle(r.Context(), targetType, target, angle)
	if err != nil {
		writeServiceError(w, err, "group command failed")
		return
	}
	writeJSON(w, http.StatusOK, newGroupResponse(res))
}
