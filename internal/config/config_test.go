package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const minimalConfig = `
providers:
  endpoints:
    - id: doubao
      display_name: "豆包"
    - id: openai
      display_name: "OpenAI"
storage:
  type: memory
logging:
  level: info
`

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Providers.MinLatency != 800*time.Millisecond {
		t.Errorf("expected default min latency 800ms, got %v", cfg.Providers.MinLatency)
	}
	if cfg.Providers.MaxLatency != 3500*time.Millisecond {
		t.Errorf("expected default max latency 3.5s, got %v", cfg.Providers.MaxLatency)
	}
	if cfg.I18n.DefaultLanguage != "zh" {
		t.Errorf("expected default language zh, got %s", cfg.I18n.DefaultLanguage)
	}
	if len(cfg.Providers.Endpoints) != 2 {
		t.Errorf("expected 2 providers, got %d", len(cfg.Providers.Endpoints))
	}
}

func TestLoadConfig_NoProviders(t *testing.T) {
	path := writeConfig(t, `
storage:
  type: memory
`)

	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error when no providers configured")
	}
}

func TestLoadConfig_DuplicateProviderIDs(t *testing.T) {
	path := writeConfig(t, `
providers:
  endpoints:
    - id: doubao
    - id: doubao
storage:
  type: memory
`)

	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for duplicate provider ids")
	}
}

func TestLoadConfig_InvalidStorageType(t *testing.T) {
	path := writeConfig(t, `
providers:
  endpoints:
    - id: doubao
storage:
  type: s3
`)

	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for unsupported storage type")
	}
}

func TestLoadConfig_AuthRequiresSecret(t *testing.T) {
	path := writeConfig(t, `
providers:
  endpoints:
    - id: doubao
storage:
  type: memory
auth:
  enabled: true
`)

	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error when auth enabled without secret")
	}
}

func TestLoadConfig_SyncRequiresBaseURL(t *testing.T) {
	path := writeConfig(t, `
providers:
  endpoints:
    - id: doubao
storage:
  type: memory
sync:
  enabled: true
`)

	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error when sync enabled without base_url")
	}
}

func TestLoadConfig_ExtraProvidersFromEnv(t *testing.T) {
	t.Setenv("EXTRA_PROVIDERS", "glm")
	t.Setenv("GLM_DISPLAY_NAME", "GLM-4")

	path := writeConfig(t, minimalConfig)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if len(cfg.Providers.Endpoints) != 3 {
		t.Fatalf("expected 3 providers with env extra, got %d", len(cfg.Providers.Endpoints))
	}
	last := cfg.Providers.Endpoints[2]
	if last.ID != "glm" || last.DisplayName != "GLM-4" {
		t.Errorf("unexpected extra provider %+v", last)
	}
}
