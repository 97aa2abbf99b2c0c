package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hookvibe/hookcode-sub000/hookcoded/core"
	"github.com/hookvibe/hookcode-sub000/internals/catalog"
	"github.com/hookvibe/hookcode-sub000/internals/conf"
	"github.com/hookvibe/hookcode-sub000/internals/logbuf"
	"github.com/hookvibe/hookcode-sub000/internals/providers"
	"github.com/hookvibe/hookcode-sub000/internals/remote"
	"github.com/hookvibe/hookcode-sub000/internals/schemas"
	"github.com/hookvibe/hookcode-sub000/sdk"
)

type noopExecutor struct{}

func (noopExecutor) Provider() schemas.ModelProvider { return schemas.ModelProviderCodex }

func (noopExecutor) Execute(ctx context.Context, in providers.Input) (providers.Output, error) {
	return providers.Output{FinalResponse: "ok"}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	config, err := conf.Default()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	root := t.TempDir()
	config.Server.DataDir = root
	config.Server.ConsoleBaseURL = "https://console.example.com"
	config.Workspaces.Dir = root + "/workspaces"

	cat, err := catalog.FromFile(catalog.File{
		Repositories: []schemas.Repository{{ID: "repo-1", Provider: remote.ProviderGitHub, Slug: "acme/api", CloneURL: "https://github.com/acme/api.git"}},
		Robots:       []schemas.Robot{{ID: "bot", RepoID: "repo-1", ModelProvider: schemas.ModelProviderCodex}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	base, err := core.New(context.Background(), core.Options{
		Config:   config,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Catalog:  cat,
		Registry: providers.NewRegistry(noopExecutor{}),
	})
	if err != nil {
		t.Fatalf("core.New: %v", err)
	}
	t.Cleanup(func() { base.Close() })
	return New(base)
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	request := httptest.NewRequest(method, path, reader)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestHandlerVersion(t *testing.T) {
	s := newTestServer(t)
	recorder := doJSON(t, s.Router(), http.MethodGet, "/version", "")
	if recorder.Code != http.StatusOK || recorder.Body.String() != s.Base.Config.Version {
		t.Fatalf("unexpected version response %d %q", recorder.Code, recorder.Body.String())
	}
	if recorder.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestHandlerCreateTaskValidation(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	recorder := doJSON(t, router, http.MethodPost, "/tasks", "{not json")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	var payload ErrorResponse
	_ = json.Unmarshal(recorder.Body.Bytes(), &payload)
	if payload.Code != JsonResponseErrorCodeInvalidJson {
		t.Fatalf("expected invalid_json, got %+v", payload)
	}

	recorder = doJSON(t, router, http.MethodPost, "/tasks", `{"robotId":"bot"}`)
	payload = ErrorResponse{}
	_ = json.Unmarshal(recorder.Body.Bytes(), &payload)
	if recorder.Code != http.StatusBadRequest || payload.Code != JsonResponseErrorCodeValidationFailed || len(payload.Errors) == 0 {
		t.Fatalf("expected validation failure, got %d %+v", recorder.Code, payload)
	}

	recorder = doJSON(t, router, http.MethodPost, "/tasks", `{"repoId":"nope","robotId":"bot"}`)
	payload = ErrorResponse{}
	_ = json.Unmarshal(recorder.Body.Bytes(), &payload)
	if recorder.Code != http.StatusBadRequest || len(payload.Errors["repoId"]) != 1 || len(payload.Errors["robotId"]) != 0 {
		t.Fatalf("expected unknown repository error, got %d %+v", recorder.Code, payload)
	}
}

func TestHandlerCreateAndGetTask(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	recorder := doJSON(t, router, http.MethodPost, "/tasks", `{"repoId":"repo-1","robotId":"bot","payload":{"prompt":"fix it"}}`)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var created schemas.TaskResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.TaskID == "" || created.Status != schemas.TaskStatusQueued {
		t.Fatalf("unexpected create response %+v", created)
	}
	if created.ConsoleURL != "https://console.example.com/tasks/"+created.TaskID {
		t.Fatalf("unexpected console url %q", created.ConsoleURL)
	}

	stored, err := s.Base.Store.Get(context.Background(), created.TaskID)
	if err != nil {
		t.Fatalf("stored task: %v", err)
	}
	if stored.RepoID != "repo-1" || stored.EventType != schemas.EventTypeManual || !stored.SkipProviderPost {
		t.Fatalf("unexpected stored task %+v", stored)
	}

	recorder = doJSON(t, router, http.MethodGet, "/tasks/"+created.TaskID, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	recorder = doJSON(t, router, http.MethodGet, "/tasks/missing", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func storeTask(t *testing.T, s *Server, id string, status schemas.TaskStatus) {
	t.Helper()
	task := &schemas.Task{ID: id, EventType: schemas.EventTypeManual, RepoID: "repo-1", RobotID: "bot", Status: status}
	if err := s.Base.Store.Create(context.Background(), task); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestHandlerTaskLogsReplaysFinishedTask(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	storeTask(t, s, "done-1", schemas.TaskStatusFailed)
	seq := uint64(5)
	if err := s.Base.Store.PatchResult(ctx, "done-1", schemas.ResultPatch{Logs: []string{"line 4", "line 5"}, LogsSeq: &seq}); err != nil {
		t.Fatalf("patch: %v", err)
	}

	httpServer := httptest.NewServer(s.Router())
	defer httpServer.Close()
	client := sdk.NewClient(sdk.WithBaseURL(httpServer.URL), sdk.WithHTTPClient(httpServer.Client()))

	var lines []logbuf.Line
	status, err := client.StreamLogs(ctx, "done-1", func(line logbuf.Line) { lines = append(lines, line) })
	if err != nil {
		t.Fatalf("StreamLogs: %v", err)
	}
	if status != schemas.TaskStatusFailed {
		t.Fatalf("expected failed, got %q", status)
	}
	if len(lines) != 2 || lines[0].Seq != 4 || lines[1].Text != "line 5" {
		t.Fatalf("unexpected lines %+v", lines)
	}
}

func TestHandlerTaskLogsFollowsLivePipeline(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	storeTask(t, s, "live-1", schemas.TaskStatusProcessing)

	pipeline := logbuf.New("live-1", s.Base.Store, logbuf.Options{})
	s.Base.Hub.Register(pipeline)
	pipeline.Append(ctx, "cloning")

	httpServer := httptest.NewServer(s.Router())
	defer httpServer.Close()
	client := sdk.NewClient(sdk.WithBaseURL(httpServer.URL), sdk.WithHTTPClient(httpServer.Client()))

	got := make(chan logbuf.Line, 10)
	done := make(chan schemas.TaskStatus, 1)
	go func() {
		status, err := client.StreamLogs(ctx, "live-1", func(line logbuf.Line) { got <- line })
		if err != nil {
			t.Errorf("StreamLogs: %v", err)
		}
		done <- status
	}()

	first := <-got
	if first.Text != "cloning" || first.Seq != 1 {
		t.Fatalf("unexpected first line %+v", first)
	}
	pipeline.Append(ctx, "running agent")
	second := <-got
	if second.Text != "running agent" || second.Seq != 2 {
		t.Fatalf("unexpected second line %+v", second)
	}

	s.Base.Hub.Unregister("live-1")
	if err := s.Base.Store.SetStatus(ctx, "live-1", schemas.TaskStatusSucceeded); err != nil {
		t.Fatalf("set status: %v", err)
	}
	select {
	case status := <-done:
		if status != schemas.TaskStatusSucceeded {
			t.Fatalf("expected succeeded, got %q", status)
		}
	case <-ctx.Done():
		t.Fatalf("stream did not end")
	}
	if extra := len(got); extra != 0 {
		t.Fatalf("expected no replayed duplicates, got %d extra lines", extra)
	}
}

func TestServeStopsOnShutdownRequest(t *testing.T) {
	s := newTestServer(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	errs := make(chan error, 1)
	go func() { errs <- s.Serve(context.Background(), listener) }()

	baseURL := "http://" + listener.Addr().String()
	if !sdk.WaitForStart(baseURL, nil) {
		t.Fatalf("server did not start")
	}
	client := sdk.NewClient(sdk.WithBaseURL(baseURL))
	if err := client.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case err := <-errs:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("server did not stop")
	}
}

func TestMiddlewareStatusRecorder(t *testing.T) {
	recorder := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: recorder}

	_, _ = sr.Write([]byte("ok"))
	if sr.status != http.StatusOK {
		t.Fatalf("expected status 200, got %d", sr.status)
	}

	recorder = httptest.NewRecorder()
	sr = &statusRecorder{ResponseWriter: recorder}
	sr.WriteHeader(http.StatusNotFound)
	if sr.status != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", sr.status)
	}
}

func TestMiddlewareLoggerPanic(t *testing.T) {
	s := newTestServer(t)

	handler := s.MiddlewareLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if LoggerFromContext(r.Context(), nil) == nil {
			t.Errorf("expected a request logger in context")
		}
		panic("boom")
	}))

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/version", nil)
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", recorder.Code)
	}
}
