package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/benkyo/internal/config"
	"github.com/hyperjump/benkyo/internal/embedding"
	"github.com/hyperjump/benkyo/internal/indexer"
	"github.com/hyperjump/benkyo/internal/llm"
	"github.com/hyperjump/benkyo/internal/models"
	"github.com/hyperjump/benkyo/internal/rag"
	"github.com/hyperjump/benkyo/internal/session"
	"github.com/hyperjump/benkyo/internal/storage"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return &llm.Response{Answer: "stub answer"}, nil
}

func newTestServer(t *testing.T, opts ...Option) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.IndexPath = filepath.Join(dir, "index.bkvi")
	cfg.Storage.MetadataPath = filepath.Join(dir, "metadata.json")
	cfg.Storage.HistoryPath = filepath.Join(dir, "history.db")

	kb, _ := rag.OpenKnowledgeBase(cfg.Storage.IndexPath, cfg.Storage.MetadataPath)
	engine := rag.NewEngine(embedding.NewMockEmbedder(4), kb, stubGenerator{})
	idx := indexer.NewIndexer(engine, &cfg.Chunking, &cfg.Ingest)
	history, err := storage.NewSQLiteHistory(cfg.Storage.HistoryPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { history.Close() })
	sess := session.New(engine, idx, history, &cfg.Retrieval)
	return NewServer(sess, cfg, opts...), dir
}

func do(t *testing.T, h http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	r := httptest.NewRequest(method, target, reader)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Handler(), http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("got %d %s", w.Code, w.Body.String())
	}
}

func TestHandleQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	w := do(t, h, http.MethodPost, "/api/v1/query", map[string]interface{}{"question": "what?"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var empty models.Answer
	if err := json.NewDecoder(w.Body).Decode(&empty); err != nil {
		t.Fatal(err)
	}
	if empty.Answer != rag.NoDocumentsAnswer {
		t.Errorf("answer = %q", empty.Answer)
	}

	fragments := []models.Fragment{{Text: "alpha", Source: "a.txt", Page: 1}, {Text: "beta", Source: "a.txt", Page: 2}}
	if w := do(t, h, http.MethodPost, "/api/v1/fragments", fragments); w.Code != http.StatusCreated {
		t.Fatalf("add fragments: %d %s", w.Code, w.Body.String())
	}
	w = do(t, h, http.MethodPost, "/api/v1/query", map[string]interface{}{"question": "alpha", "top_k": 1})
	var ans models.Answer
	if err := json.NewDecoder(w.Body).Decode(&ans); err != nil {
		t.Fatal(err)
	}
	if ans.Answer != "stub answer" || len(ans.Sources) != 1 || ans.Sources[0].Text != "alpha" {
		t.Errorf("answer = %+v", ans)
	}
}

func TestHandleQuery_badRequests(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed_json", "{"},
		{"empty_question", map[string]string{"question": "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/query", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", w.Code)
			}
			if !strings.Contains(w.Body.String(), `"error"`) {
				t.Errorf("body: %s", w.Body.String())
			}
		})
	}
}

func TestHandleAddDocument(t *testing.T) {
	srv, dir := newTestServer(t)
	h := srv.Handler()
	path := filepath.Join(dir, "lecture.txt")
	if err := os.WriteFile(path, []byte("Enzymes lower activation energy."), 0600); err != nil {
		t.Fatal(err)
	}
	blank := filepath.Join(dir, "blank.txt")
	if err := os.WriteFile(blank, []byte("   \n "), 0600); err != nil {
		t.Fatal(err)
	}

	w := do(t, h, http.MethodPost, "/api/v1/documents", map[string]string{"path": path})
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var res models.IngestResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Source != "lecture.txt" || res.Fragments != 1 {
		t.Errorf("result = %+v", res)
	}

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"duplicate", map[string]string{"path": path}, http.StatusConflict},
		{"no_content", map[string]string{"path": blank}, http.StatusUnprocessableEntity},
		{"missing_file", map[string]string{"path": filepath.Join(dir, "nope.txt")}, http.StatusNotFound},
		{"bad_extension", map[string]string{"path": filepath.Join(dir, "x.exe")}, http.StatusBadRequest},
		{"nothing", map[string]string{}, http.StatusBadRequest},
		{"raw_text", map[string]string{"source": "pasted", "text": "some pasted notes"}, http.StatusCreated},
		{"raw_text_no_source", map[string]string{"text": "orphan"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, h, http.MethodPost, "/api/v1/documents", tt.body); w.Code != tt.want {
				t.Errorf("status: got %d, want %d, body: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestHandleAddFragments_invalid(t *testing.T) {
	srv, _ := newTestServer(t)
	fragments := []models.Fragment{{Text: "ok", Source: "s", Page: 1}, {Text: "no page", Source: "s"}}
	w := do(t, srv.Handler(), http.MethodPost, "/api/v1/fragments", fragments)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, body: %s", w.Code, w.Body.String())
	}
}

func TestHandleDocuments_infoAndClear(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	fragments := []models.Fragment{{Text: "a", Source: "x.pdf", Page: 1}, {Text: "b", Source: "y.pdf", Page: 3}}
	do(t, h, http.MethodPost, "/api/v1/fragments", fragments)

	w := do(t, h, http.MethodGet, "/api/v1/documents", nil)
	var info models.DocumentsInfo
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.TotalFragments != 2 || info.Documents["x.pdf"] != 1 || info.Documents["y.pdf"] != 1 {
		t.Errorf("info = %+v", info)
	}

	for i := 0; i < 2; i++ {
		if w := do(t, h, http.MethodDelete, "/api/v1/documents", nil); w.Code != http.StatusOK {
			t.Errorf("clear %d: %d", i, w.Code)
		}
	}
	w = do(t, h, http.MethodGet, "/api/v1/documents", nil)
	info = models.DocumentsInfo{}
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.TotalFragments != 0 {
		t.Errorf("after clear: %+v", info)
	}
}

func TestHandleHistory(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	w := do(t, h, http.MethodGet, "/api/v1/history", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"interactions":[]`) {
		t.Errorf("empty history: %d %s", w.Code, w.Body.String())
	}

	do(t, h, http.MethodPost, "/api/v1/query", map[string]string{"question": "first"})
	do(t, h, http.MethodPost, "/api/v1/query", map[string]string{"question": "second"})
	w = do(t, h, http.MethodGet, "/api/v1/history?limit=1", nil)
	var out struct {
		Interactions []models.Interaction `json:"interactions"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Interactions) != 1 || out.Interactions[0].Query != "second" {
		t.Fatalf("history = %+v", out.Interactions)
	}

	id := out.Interactions[0].ID
	if w := do(t, h, http.MethodDelete, "/api/v1/history/"+id, nil); w.Code != http.StatusOK {
		t.Errorf("delete: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/history/"+id, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want 404", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/history?limit=x", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: got %d", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	do(t, h, http.MethodPost, "/api/v1/fragments", []models.Fragment{{Text: "a", Source: "x", Page: 1}})

	w := do(t, h, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Status session.Status          `json:"status"`
		Config map[string]interface{} `json:"config"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Status.Fragments != 1 || out.Status.Dimensions != 4 || out.Status.DiskUsageBytes < 1 {
		t.Errorf("status = %+v", out.Status)
	}
	if out.Config["chunk_size"] != float64(config.DefaultChunkSize) {
		t.Errorf("config = %v", out.Config)
	}
}

func TestHandleWatchDirectories_notEnabled(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/watch/directories", nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", w.Code)
	}
}

func TestHandleWatchDirectories(t *testing.T) {
	mock := &mockWatchService{dirs: []string{"/tmp/docs"}}
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	srv, dir := newTestServer(t, WithWatch(mock, configPath))
	h := srv.Handler()

	w := do(t, h, http.MethodGet, "/api/v1/watch/directories", nil)
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Directories) != 1 || out.Directories[0] != "/tmp/docs" {
		t.Errorf("directories: got %v", out.Directories)
	}

	if w := do(t, h, http.MethodPost, "/api/v1/watch/directories", map[string]string{"path": dir}); w.Code != http.StatusCreated {
		t.Fatalf("add: %d %s", w.Code, w.Body.String())
	}
	if len(mock.Directories()) != 2 {
		t.Errorf("expected 2 directories, got %v", mock.Directories())
	}
	saved, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("saved config: %v", err)
	}
	if len(saved.Watch.Directories) != 2 {
		t.Errorf("persisted directories = %v", saved.Watch.Directories)
	}

	if w := do(t, h, http.MethodPost, "/api/v1/watch/directories", map[string]string{"path": filepath.Join(dir, "missing")}); w.Code != http.StatusNotFound {
		t.Errorf("missing dir: got %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/watch/directories?path="+dir, nil); w.Code != http.StatusOK {
		t.Errorf("remove: %d", w.Code)
	}
	if len(mock.Directories()) != 1 {
		t.Errorf("after remove: %v", mock.Directories())
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/watch/directories", nil); w.Code != http.StatusBadRequest {
		t.Errorf("remove without path: got %d", w.Code)
	}
}
