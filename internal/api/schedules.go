package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/venthub/internal/automation"
)

// scheduleRequest is the body of POST /schedules. Time is HH:MM in the
// site's timezone.
type scheduleRequest struct {
	Name       string `json:"name"`
	Time       string `json:"time"`
	TargetType string `json:"target_type"`
	Target     string `json:"target"`
	Angle      int    `json:"angle"`
	Enabled    *bool  `json:"enabled"`
}

// scheduleResponse adds the formatted time to a rule.
type scheduleResponse struct {
	automation.Rule
	Time string `json:"time"`
}

func toScheduleResponse(r automation.Rule) scheduleResponse {
	return scheduleResponse{Rule: r, Time: r.TimeOfDay()}
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hubFor(w, r)
	if !ok {
		return
	}
	rules := h.Scheduler().Rules()
	out := make([]scheduleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toScheduleResponse(rule))
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": out, "count": len(out)})
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hubFor(w, r)
	if !ok {
		return
	}
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	hour, minute, err := automation.ParseTimeOfDay(req.Time)
	if err != nil {
		writeServiceError(w, err, "invalid time")
		return
	}

	rule := automation.Rule{
		Name:       req.Name,
		Hour:       hour,
		Minute:     minute,
		TargetType: req.TargetType,
		Target:     req.Target,
		Angle:      req.Angle,
		Enabled:    req.Enabled == nil || *req.Enabled,
	}
	if err := h.Scheduler().AddRule(r.Context(), rule); err != nil {
		writeServiceError(w, err, "failed to save schedule")
		return
	}
	stored, _ := h.Scheduler().Rule(rule.Name)
	writeJSON(w, http.StatusCreated, toScheduleResponse(stored))
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hubFor(w, r)
	if !ok {
		return
	}
	if err := h.Scheduler().RemoveRule(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeServiceError(w, err, "failed to delete schedule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetScheduleEnabled(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hubFor(w, r)
	if !ok {
		return
	}
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeBadRequest(w, "enabled is required")
		return
	}
	name := chi.URLParam(r, "name")
	if err := h.Scheduler().SetEnabled(r.Context(), name, *req.Enabled); err != nil {
		writeServiceError(w, err, "failed to update schedule")
		return
	}
	rule, _ := h.Scheduler().Rule(name)
	writeJSON(w, http.StatusOK, toScheduleResponse(rule))
}
