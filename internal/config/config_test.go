package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SEARCH_BACKEND", "")
	t.Setenv("SEARCH_THREADS", "")
	t.Setenv("LLM_RATE_LIMIT_PER_SECOND", "")
	t.Setenv("POSTGRES_DSN", "")

	cfg := Load()
	if cfg.SearchBackend != SearchNone {
		t.Fatalf("expected default search backend none, got %q", cfg.SearchBackend)
	}
	if cfg.SearchThreads != 16 {
		t.Fatalf("expected default search threads 16, got %d", cfg.SearchThreads)
	}
	if cfg.LLMRateLimitPerSecond != 0 {
		t.Fatalf("expected rate limit disabled, got %v", cfg.LLMRateLimitPerSecond)
	}
	if cfg.PostgresDSN != "" {
		t.Fatalf("expected persistence disabled by default")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("SEARCH_BACKEND", "qdrant")
	t.Setenv("SEARCH_THREADS", "4")
	t.Setenv("LLM_RATE_LIMIT_PER_SECOND", "2.5")
	t.Setenv("QDRANT_DENSE", "true")
	t.Setenv("CHUNK_SIZE", "not-a-number")

	cfg := Load()
	if cfg.SearchBackend != SearchQdrant || cfg.SearchThreads != 4 {
		t.Fatalf("unexpected search settings: %+v", cfg)
	}
	if cfg.LLMRateLimitPerSecond != 2.5 {
		t.Fatalf("expected rate 2.5, got %v", cfg.LLMRateLimitPerSecond)
	}
	if !cfg.QdrantDense {
		t.Fatalf("expected dense qdrant")
	}
	if cfg.ChunkSize != 0 {
		t.Fatalf("expected invalid int to fall back, got %d", cfg.ChunkSize)
	}
}

func TestFewShotConfigured(t *testing.T) {
	cfg := Config{FewShotQueriesPath: "q", FewShotCollectionPath: "c"}
	if cfg.FewShotConfigured() {
		t.Fatalf("expected incomplete few-shot config")
	}
	cfg.FewShotQrelsPath = "r"
	if !cfg.FewShotConfigured() {
		t.Fatalf("expected few-shot config")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("QR_TEST_MODEL", "llama3")
	t.Setenv("QR_TEST_EMPTY", "")
	got := ExpandEnv("model: ${QR_TEST_MODEL}, url: ${QR_TEST_UNSET:-http://x:1}, key: '${QR_TEST_UNSET}', e: '${QR_TEST_EMPTY:-d}'")
	want := "model: llama3, url: http://x:1, key: '', e: ''"
	if got != want {
		t.Fatalf("ExpandEnv() = %q, want %q", got, want)
	}
}

func TestParseMethodConfig(t *testing.T) {
	t.Setenv("QR_TEST_MODEL", "qwen")
	raw := []byte(`
name: ignored
seed: 7
params:
  num_docs: 3
  parallel: true
llm:
  model: ${QR_TEST_MODEL}
  temperature: 0.5
  base_url: ${QR_TEST_BASE:-http://localhost:8000/v1}
`)
	cfg, err := ParseMethodConfig(raw, "mugi")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Name != "mugi" || cfg.SeedValue() != 7 || cfg.Retries != domain.DefaultRetries {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.ParamInt("num_docs", 5) != 3 || !cfg.ParamBool("parallel", false) {
		t.Fatalf("unexpected params: %v", cfg.Params)
	}
	if cfg.LLMString("model", "") != "qwen" || cfg.LLMString("base_url", "") != "http://localhost:8000/v1" {
		t.Fatalf("unexpected llm section: %v", cfg.LLM)
	}
}

func TestParseMethodConfigErrors(t *testing.T) {
	if _, err := ParseMethodConfig([]byte("params: ["), "genqr"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for broken yaml, got %v", err)
	}
	if _, err := ParseMethodConfig([]byte("seed: 1"), ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input without a name, got %v", err)
	}
}

func TestLoadMethodConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genqr.yaml")
	if err := os.WriteFile(path, []byte("retries: 0\nparams:\n  repeat_query_weight: 2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadMethodConfig(path, "genqr")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ParamInt("repeat_query_weight", 5) != 2 {
		t.Fatalf("unexpected params: %v", cfg.Params)
	}

	cfg, err = LoadMethodConfig("", "csqe")
	if err != nil || cfg.Name != "csqe" {
		t.Fatalf("expected defaults for csqe, got %+v %v", cfg, err)
	}
}

func TestParseMethodConfigAcceptsZeroSeed(t *testing.T) {
	cfg, err := ParseMethodConfig([]byte("seed: 0\n"), "query2doc")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.SeedValue() != 0 {
		t.Fatalf("expected seed 0, got %d", cfg.SeedValue())
	}
	cfg, err = ParseMethodConfig(nil, "query2doc")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.SeedValue() != domain.DefaultSeed {
		t.Fatalf("expected default seed, got %d", cfg.SeedValue())
	}
}
