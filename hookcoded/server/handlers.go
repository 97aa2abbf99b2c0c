package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	z "github.com/Oudwins/zog"
	"github.com/go-chi/chi/v5"

	"github.com/hookvibe/hookcode-sub000/internals/schemas"
	"github.com/hookvibe/hookcode-sub000/internals/store"
)

func (s *Server) HandlerVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(s.Base.Config.Version))
}

func (s *Server) HandlerShutdown(w http.ResponseWriter, r *http.Request) {
	RenderJSON(w, r, map[string]JsonResponseStatus{"status": JsonResponseStatusSuccess})
	go s.Shutdown()
}

func (s *Server) HandlerCreateTask(w http.ResponseWriter, r *http.Request) {
	var request schemas.TaskCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeInvalidJson, "Invalid JSON", nil), Render.Status(http.StatusBadRequest))
		return
	}

	if issues := schemas.TaskCreateSchema.Validate(&request); len(issues) > 0 {
		payload := JsonResponseError(JsonResponseErrorCodeValidationFailed, "Schema validation failed", z.Issues.Flatten(issues))
		RenderJSON(w, r, payload, Render.Status(http.StatusBadRequest))
		return
	}

	fieldErrors := map[string][]string{}
	if _, ok := s.Base.Catalog.Repository(request.RepoID); !ok {
		fieldErrors["repoId"] = []string{"unknown repository"}
	}
	if _, ok := s.Base.Catalog.Robot(request.RobotID); !ok {
		fieldErrors["robotId"] = []string{"unknown robot"}
	}
	if len(fieldErrors) > 0 {
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeValidationFailed, "Unknown catalog entries", fieldErrors), Render.Status(http.StatusBadRequest))
		return
	}

	task, err := s.Base.CreateTask(r.Context(), request)
	if err != nil {
		LoggerFromContext(r.Context(), s.Base.Logger).Error("failed to create task", slog.String("error", err.Error()))
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeInternal, "Failed to create task", nil), Render.Status(http.StatusInternalServerError))
		return
	}
	RenderJSON(w, r, schemas.NewTaskResponse(task, s.Base.ConsoleURL(task.ID)), Render.Status(http.StatusAccepted))
}

func (s *Server) HandlerTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.loadTask(w, r)
	if !ok {
		return
	}
	RenderJSON(w, r, schemas.NewTaskResponse(task, s.Base.ConsoleURL(task.ID)))
}

func (s *Server) loadTask(w http.ResponseWriter, r *http.Request) (*schemas.Task, bool) {
	taskID := chi.URLParam(r, "id")
	if taskID == "" {
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeValidationFailed, "task id is required", nil), Render.Status(http.StatusBadRequest))
		return nil, false
	}

	task, err := s.Base.Store.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeNotFound, "task not found", nil), Render.Status(http.StatusNotFound))
			return nil, false
		}
		LoggerFromContext(r.Context(), s.Base.Logger).Error("failed to read task", slog.String("error", err.Error()))
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeInternal, "Failed to read task", nil), Render.Status(http.StatusInternalServerError))
		return nil, false
	}
	return task, true
}

func isFinished(status schemas.TaskStatus) bool {
	return status == schemas.TaskStatusSucceeded || status == schemas.TaskStatusFailed
}

// firstSeq numbers a buffer the way the pipeline does: seq is the running
// append count, so n buffered lines ending at seq start at seq-n+1.
func firstSeq(lines []string, seq uint64) uint64 {
	if uint64(len(lines)) > seq {
		return 1
	}
	return seq - uint64(len(lines)) + 1
}

var (
	streamPollInterval = 250 * time.Millisecond
	streamHeartbeat    = 15 * time.Second
)

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseWriter) event(name string, id uint64, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if id > 0 {
		if _, err := fmt.Fprintf(s.w, "id: %d\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
