package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  index_path: "/var/lib/benkyo/index.bkvi"
embedding:
  provider: mock
  dimensions: 8
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.IndexPath != "/var/lib/benkyo/index.bkvi" {
		t.Errorf("index_path = %s", cfg.Storage.IndexPath)
	}
	if cfg.Embedding.Provider != ProviderMock || cfg.Embedding.Dimensions != 8 {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  metadata_path: "./kb/metadata.json"
watch:
  directories: ["./inbox"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "kb", "metadata.json"); cfg.Storage.MetadataPath != want {
		t.Errorf("metadata_path = %s, want %s", cfg.Storage.MetadataPath, want)
	}
	// Defaults are relative to the config directory too.
	if want := filepath.Join(dir, "data", "index.bkvi"); cfg.Storage.IndexPath != want {
		t.Errorf("index_path = %s, want %s", cfg.Storage.IndexPath, want)
	}
	if len(cfg.Watch.Directories) != 1 || cfg.Watch.Directories[0] != filepath.Join(dir, "inbox") {
		t.Errorf("watch directories = %v", cfg.Watch.Directories)
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"negative overlap", "chunking:\n  chunk_overlap: -1\n", "chunk_overlap"},
		{"negative chunk size", "chunking:\n  chunk_size: -5\n", "chunk_size"},
		{"unknown provider", "embedding:\n  provider: word2vec\n", "provider"},
		{"top_k above max", "retrieval:\n  top_k: 20\n  max_top_k: 10\n", "top_k"},
		{"temperature", "generation:\n  temperature: 3\n", "temperature"},
		{"bad yaml", "server: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Error("expected error for missing config")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("default server: %+v", cfg.Server)
	}
	if cfg.Chunking.ChunkSize != 1000 || cfg.Chunking.ChunkOverlap != 200 {
		t.Errorf("default chunking: %+v", cfg.Chunking)
	}
	if cfg.Retrieval.TopK != 4 {
		t.Errorf("default top_k: got %d", cfg.Retrieval.TopK)
	}
	if cfg.Embedding.Provider != ProviderONNX || cfg.Embedding.Dimensions != 384 {
		t.Errorf("default embedding: %+v", cfg.Embedding)
	}
	if cfg.Generation.Model != "llama-3.3-70b-versatile" || cfg.Generation.Temperature != 0.3 {
		t.Errorf("default generation: %+v", cfg.Generation)
	}
	if cfg.Generation.APIKeyEnv != "GROQ_API_KEY" {
		t.Errorf("default api key env: %s", cfg.Generation.APIKeyEnv)
	}
	if cfg.Ingest.MaxFileSize != 50*1024*1024 {
		t.Errorf("default max file size: %d", cfg.Ingest.MaxFileSize)
	}
	if len(cfg.Ingest.Extensions) != len(DefaultExtensions) || cfg.Ingest.Extensions[0] != ".pdf" {
		t.Errorf("default extensions: %v", cfg.Ingest.Extensions)
	}
	if cfg.Storage.IndexPath != "./data/index.bkvi" {
		t.Errorf("default index path: %s", cfg.Storage.IndexPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_noModelPathForRemoteProvider(t *testing.T) {
	cfg := &Config{Embedding: EmbeddingConfig{Provider: ProviderOpenAI}}
	ApplyDefaults(cfg)
	if cfg.Embedding.ModelPath != "" {
		t.Errorf("openai provider should not get a model path, got %s", cfg.Embedding.ModelPath)
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/inbox"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestAPIKey(t *testing.T) {
	t.Setenv("BENKYO_TEST_KEY", "secret")
	g := &GenerationConfig{APIKeyEnv: "BENKYO_TEST_KEY"}
	if g.APIKey() != "secret" {
		t.Errorf("APIKey() = %q", g.APIKey())
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := Default()
	cfg.Server.Port = 9090
	cfg.Storage.IndexPath = "/tmp/index.bkvi"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Storage.IndexPath != "/tmp/index.bkvi" {
		t.Errorf("loaded index path: got %s", loaded.Storage.IndexPath)
	}
}
