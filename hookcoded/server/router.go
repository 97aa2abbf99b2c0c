package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.MiddlewareLogger)
	r.Get("/version", s.HandlerVersion)
	r.Post("/shutdown", s.HandlerShutdown)
	r.Post("/tasks", s.HandlerCreateTask)
	r.Get("/tasks/{id}", s.HandlerTask)
	r.Get("/tasks/{id}/logs", s.HandlerTaskLogs)
	return r
}
