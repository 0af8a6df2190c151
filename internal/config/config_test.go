package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadIncludesExtractionDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STRUCTURED_TIMEOUT_SECONDS", "")
	t.Setenv("TEXT_TIMEOUT_SECONDS", "")
	t.Setenv("AUTO_APPLY_THRESHOLD", "")
	t.Setenv("STRUCTURED_PROVIDER", "")

	cfg := Load()
	if cfg.StructuredTimeoutSeconds != 30 {
		t.Fatalf("expected default structured timeout 30, got %d", cfg.StructuredTimeoutSeconds)
	}
	if cfg.TextTimeoutSeconds != 15 {
		t.Fatalf("expected default text timeout 15, got %d", cfg.TextTimeoutSeconds)
	}
	if cfg.AutoApplyThreshold != 80 {
		t.Fatalf("expected default threshold 80, got %v", cfg.AutoApplyThreshold)
	}
	if cfg.StructuredProvider != "openai" {
		t.Fatalf("expected default provider openai, got %q", cfg.StructuredProvider)
	}
	if !cfg.MCPEnabled || cfg.MCPPath != "/mcp" {
		t.Fatalf("expected MCP enabled at /mcp, got %v %q", cfg.MCPEnabled, cfg.MCPPath)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STRUCTURED_PROVIDER", "Gemini")
	t.Setenv("AUTO_APPLY_THRESHOLD", "72.5")
	t.Setenv("API_RATE_LIMIT_RPS", "3.5")
	t.Setenv("MCP_ENABLED", "false")
	t.Setenv("TEXT_TIMEOUT_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.StructuredProvider != "gemini" {
		t.Fatalf("expected lowercased provider, got %q", cfg.StructuredProvider)
	}
	if cfg.AutoApplyThreshold != 72.5 || cfg.APIRateLimitRPS != 3.5 {
		t.Fatalf("unexpected float overrides %v %v", cfg.AutoApplyThreshold, cfg.APIRateLimitRPS)
	}
	if cfg.MCPEnabled {
		t.Fatalf("expected MCP disabled")
	}
	if cfg.TextTimeoutSeconds != 15 {
		t.Fatalf("expected invalid int to fall back to 15, got %d", cfg.TextTimeoutSeconds)
	}
}

func TestLoadUsesConfigFileBelowEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.yaml")
	content := "OPENAI_MODEL: gpt-4o\nRETENTION_DAYS: 30\nimage_archive_path: /var/lib/snap/images\nAPI_PORT: 9000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("RETENTION_DAYS", "")
	t.Setenv("IMAGE_ARCHIVE_PATH", "")
	t.Setenv("API_PORT", "8181")

	cfg := Load()
	if cfg.OpenAIModel != "gpt-4o" || cfg.RetentionDays != 30 {
		t.Fatalf("expected file values, got %q %d", cfg.OpenAIModel, cfg.RetentionDays)
	}
	if cfg.ImageArchivePath != "/var/lib/snap/images" {
		t.Fatalf("expected upper-cased file key to apply, got %q", cfg.ImageArchivePath)
	}
	if cfg.APIPort != "8181" {
		t.Fatalf("expected environment to override file, got %q", cfg.APIPort)
	}
}

func TestLoadIgnoresUnreadableConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("API_PORT", "")

	cfg := Load()
	if cfg.APIPort != "8080" {
		t.Fatalf("expected defaults when file is missing, got %q", cfg.APIPort)
	}
}
