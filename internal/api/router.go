package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nerrad567/venthub/internal/infrastructure/metrics"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.withRequestID)
	r.Use(s.withAccessLog)
	r.Use(s.withRecovery)
	r.Use(s.withCORS)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)
		r.Get("/hubs", s.handleListHubs)

		r.Post("/discover", s.handleDiscover)
		r.Post("/poll", s.handlePoll)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Delete("/", s.handleDeleteDevice)
				r.Put("/angle", s.handleSetDeviceAngle)
				r.Put("/assignment", s.handleAssignDevice)
				r.Post("/refresh", s.handleRefreshDevice)
			})
		})

		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", s.handleListRooms)
			r.Get("/{room}", s.handleGetRoom)
			r.Put("/{room}/angle", s.handleSetRoomAngle)
		})

		r.Route("/floors", func(r chi.Router) {
			r.Get("/", s.handleListFloors)
			r.Get("/{floor}", s.handleGetFloor)
			r.Put("/{floor}/angle", s.handleSetFloorAngle)
		})

		r.Put("/angle", s.handleSetAllAngle)

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", s.handleListSchedules)
			r.Post("/", s.handleCreateSchedule)
			r.Delete("/{name}", s.handleDeleteSchedule)
			r.Put("/{name}/enabled", s.handleSetScheduleEnabled)
		})
	})

	return r
}
