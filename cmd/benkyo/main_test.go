package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/benkyo/internal/config"
	"github.com/hyperjump/benkyo/internal/models"
	"github.com/hyperjump/benkyo/internal/rag"
	"github.com/hyperjump/benkyo/internal/server"
	"go.uber.org/zap"
)

func TestReorderArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after question are moved first",
			args:     []string{"what is ATP", "-top-k", "2"},
			expected: []string{"-top-k", "2", "what is ATP"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-top-k", "2", "what is ATP"},
			expected: []string{"-top-k", "2", "what is ATP"},
		},
		{
			name:     "question only returns unchanged",
			args:     []string{"what", "is", "ATP"},
			expected: []string{"what", "is", "ATP"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reorderArgs(tt.args); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("reorderArgs() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestJoinArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"photosynthesis"}, "photosynthesis"},
		{"multiple words", []string{"what", "is", "ATP"}, "what is ATP"},
		{"quoted phrase", []string{"what is ATP"}, "what is ATP"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinArgs(tt.args); got != tt.expected {
				t.Errorf("joinArgs(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  port: 9090
embedding:
  provider: mock
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug || cfg.Server.Port != 9090 || cfg.Embedding.Provider != config.ProviderMock {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadConfig_defaultsWhenNoFile(t *testing.T) {
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("a system config exists")
	}
	chdir(t, t.TempDir())
	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" || cfg.Chunking.ChunkSize != config.DefaultChunkSize {
		t.Errorf("resolved = %q, cfg = %+v", resolved, cfg.Chunking)
	}
}

func TestLoadConfig_explicitPathMustExist(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

// writeTestConfig writes a config using the mock embedder with storage under dir.
func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := config.Default()
	cfg.Embedding.Provider = config.ProviderMock
	cfg.Embedding.ModelPath = ""
	cfg.Embedding.Dimensions = 8
	cfg.Storage.IndexPath = filepath.Join(dir, "data", "index.bkvi")
	cfg.Storage.MetadataPath = filepath.Join(dir, "data", "metadata.json")
	cfg.Storage.HistoryPath = filepath.Join(dir, "data", "history.db")
	path := filepath.Join(dir, "config.yaml")
	if err := config.Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_directMode(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	dir := t.TempDir()
	configPath := writeTestConfig(t, dir)
	doc := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(doc, []byte("The Krebs cycle happens in the mitochondrial matrix."), 0600); err != nil {
		t.Fatal(err)
	}
	common := []string{"-config", configPath, "-server", ""}

	var out bytes.Buffer
	if err := run("ask", append(common, "anything"), &out); err != nil {
		t.Fatalf("ask on empty knowledge base: %v", err)
	}
	if !strings.Contains(out.String(), rag.NoDocumentsAnswer) {
		t.Errorf("ask output = %q", out.String())
	}

	out.Reset()
	if err := run("add", append(common, doc), &out); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out.String(), "Added notes.md") {
		t.Errorf("add output = %q", out.String())
	}

	out.Reset()
	if err := run("info", append(common, "-output", "json"), &out); err != nil {
		t.Fatalf("info: %v", err)
	}
	if !strings.Contains(out.String(), `"notes.md": 1`) {
		t.Errorf("info output = %q", out.String())
	}

	// Without an API key the question reaches the generator and fails with a hint.
	if err := run("ask", append(common, "where", "is", "the", "krebs", "cycle"), &out); err == nil || !strings.Contains(err.Error(), "GROQ_API_KEY") {
		t.Errorf("expected missing key error, got %v", err)
	}

	out.Reset()
	if err := run("history", common, &out); err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out.String(), "Q: anything") {
		t.Errorf("history output = %q", out.String())
	}

	out.Reset()
	if err := run("clear", append(common, "-yes"), &out); err != nil {
		t.Fatalf("clear: %v", err)
	}
	out.Reset()
	if err := run("info", common, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "empty") {
		t.Errorf("info after clear = %q", out.String())
	}
}

func TestRun_usage(t *testing.T) {
	var out bytes.Buffer
	if err := run("version", nil, &out); err != nil || !strings.Contains(out.String(), "benkyo version") {
		t.Errorf("version: %v %q", err, out.String())
	}
	if err := run("bogus", nil, &out); err != errUsage {
		t.Errorf("unknown command: got %v", err)
	}
	if err := run("ask", []string{"-server", ""}, &out); err != errUsage {
		t.Errorf("ask without question: got %v", err)
	}
}

func TestRunInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	var out bytes.Buffer
	if err := run("init", []string{path}, &out); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err != nil {
		t.Errorf("written config does not load: %v", err)
	}
	if err := run("init", []string{path}, &out); err == nil {
		t.Error("expected error when file exists")
	}
	if err := run("init", []string{"-force", path}, &out); err != nil {
		t.Errorf("init -force: %v", err)
	}
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.png", "sub/c.md"} {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0600); err != nil {
			t.Fatal(err)
		}
	}
	paths, err := expandInputs([]string{dir, filepath.Join(dir, "b.png")}, []string{".pdf", ".md"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "a.pdf"), filepath.Join(dir, "sub", "c.md"), filepath.Join(dir, "b.png")}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
	if _, err := expandInputs([]string{filepath.Join(dir, "missing")}, nil); err == nil {
		t.Error("expected error for missing input")
	}
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	if !confirm(strings.NewReader("y\n"), &out, "ok?") {
		t.Error("y should confirm")
	}
	if confirm(strings.NewReader("\n"), &out, "ok?") {
		t.Error("empty answer should not confirm")
	}
}

func TestAPIClient(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	dir := t.TempDir()
	cfg, err := config.Load(writeTestConfig(t, dir))
	if err != nil {
		t.Fatal(err)
	}
	a, err := newApp(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	ts := httptest.NewServer(server.NewServer(a.session, cfg).Handler())
	defer ts.Close()

	ctx := context.Background()
	c := newAPIClient(ts.URL)
	if !c.reachable(ctx) {
		t.Fatal("server should be reachable")
	}
	if newAPIClient("").reachable(ctx) {
		t.Error("empty URL should not be reachable")
	}

	doc := filepath.Join(dir, "ch1.txt")
	if err := os.WriteFile(doc, []byte("Osmosis moves water across membranes."), 0600); err != nil {
		t.Fatal(err)
	}
	res, err := c.addDocument(ctx, doc)
	if err != nil || res.Source != "ch1.txt" {
		t.Fatalf("addDocument = %+v, %v", res, err)
	}
	if _, err := c.addDocument(ctx, doc); err == nil || !strings.Contains(err.Error(), "409") {
		t.Errorf("duplicate add: %v", err)
	}
	info, err := c.info(ctx)
	if err != nil || info.TotalFragments != 1 {
		t.Errorf("info = %+v, %v", info, err)
	}
	st, err := c.status(ctx)
	if err != nil || st.Fragments != 1 || st.Dimensions != 8 {
		t.Errorf("status = %+v, %v", st, err)
	}
	if err := c.clear(ctx); err != nil {
		t.Fatal(err)
	}
	ans, err := c.ask(ctx, models.QueryRequest{Question: "osmosis?"})
	if err != nil || ans.Answer != rag.NoDocumentsAnswer {
		t.Errorf("ask = %+v, %v", ans, err)
	}
	items, err := c.history(ctx, 5)
	if err != nil || len(items) != 1 {
		t.Fatalf("history = %v, %v", items, err)
	}
	if err := c.deleteInteraction(ctx, items[0].ID); err != nil {
		t.Errorf("deleteInteraction: %v", err)
	}
	if _, err := c.watchList(ctx); err == nil || !strings.Contains(err.Error(), "watch not enabled") {
		t.Errorf("watchList without watcher: %v", err)
	}
}
