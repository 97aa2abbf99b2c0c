package server

import (
	"context"
	"net/http"
	"time"

	"github.com/hookvibe/hookcode-sub000/internals/logbuf"
	"github.com/hookvibe/hookcode-sub000/internals/schemas"
)

type streamEnd struct {
	Status schemas.TaskStatus `json:"status"`
}

// HandlerTaskLogs streams task logs as server-sent events. Live lines come
// from the running pipeline; once the task has finished the persisted tail
// is replayed and an "end" event carries the final status.
func (s *Server) HandlerTaskLogs(w http.ResponseWriter, r *http.Request) {
	task, ok := s.loadTask(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeInternal, "streaming unsupported", nil), Render.Status(http.StatusInternalServerError))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	out := &sseWriter{w: w, flusher: flusher}
	if err := out.comment("connected"); err != nil {
		return
	}

	ctx := r.Context()
	stream := &logStream{out: out}
	poll := time.NewTicker(streamPollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		if pipeline, ok := s.Base.Hub.Get(task.ID); ok {
			if err := stream.follow(ctx, pipeline, heartbeat.C); err != nil {
				return
			}
		}

		current, err := s.Base.Store.Get(ctx, task.ID)
		if err != nil {
			return
		}
		if isFinished(current.Status) {
			if err := stream.lines(current.Result.Logs, current.Result.LogsSeq); err != nil {
				return
			}
			_ = out.event("end", 0, streamEnd{Status: current.Status})
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-poll.C:
		case <-heartbeat.C:
			if err := out.comment("ping"); err != nil {
				return
			}
		}
	}
}

type logStream struct {
	out  *sseWriter
	sent uint64
}

func (l *logStream) lines(lines []string, seq uint64) error {
	start := firstSeq(lines, seq)
	for i, text := range lines {
		n := start + uint64(i)
		if n <= l.sent {
			continue
		}
		if err := l.out.event("log", n, logbuf.Line{Seq: n, Text: text}); err != nil {
			return err
		}
		l.sent = n
	}
	return nil
}

// follow relays a pipeline until it closes. Each run numbers its lines
// from one, so the cursor restarts with it.
func (l *logStream) follow(ctx context.Context, pipeline *logbuf.Pipeline, heartbeat <-chan time.Time) error {
	ch, cancel := pipeline.Subscribe()
	defer cancel()

	l.sent = 0
	if err := l.lines(pipeline.Snapshot()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-ch:
			if !ok {
				return nil
			}
			if line.Seq <= l.sent {
				continue
			}
			if err := l.out.event("log", line.Seq, line); err != nil {
				return err
			}
			l.sent = line.Seq
		case <-heartbeat:
			if err := l.out.comment("ping"); err != nil {
				return err
			}
		}
	}
}
