package logbuf

import "sync"

// Hub indexes the pipelines of running tasks for live viewers.
type Hub struct {
	mu        sync.RWMutex
	pipelines map[string]*Pipeline
}

func NewHub() *Hub {
	return &Hub{pipelines: map[string]*Pipeline{}}
}

func (h *Hub) Register(pipeline *Pipeline) {
	if h == nil || pipeline == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pipelines[pipeline.TaskID()] = pipeline
}

// Unregister closes the pipeline's subscriptions and forgets it.
func (h *Hub) Unregister(taskID string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	pipeline, ok := h.pipelines[taskID]
	delete(h.pipelines, taskID)
	h.mu.Unlock()
	if ok {
		pipeline.Close()
	}
}

func (h *Hub) Get(taskID string) (*Pipeline, bool) {
	if h == nil {
		return nil, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	pipeline, ok := h.pipelines[taskID]
	return pipeline, ok
}
