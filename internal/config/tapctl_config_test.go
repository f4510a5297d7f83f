package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tapctl.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(context.Background(), t.TempDir(), envconfig.MapLookuper(nil))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Jobs != 1 {
		t.Errorf("Jobs = %d, want 1", cfg.Jobs)
	}
	if cfg.AllowUnverified {
		t.Error("AllowUnverified should default to false")
	}
	if d, _ := cfg.Timeout(); d != DefaultFetchTimeout {
		t.Errorf("Timeout() = %v, want %v", d, DefaultFetchTimeout)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := writeConfig(t, `
tap = "~/taps/mobile-tools"
jobs = 2
fetch_timeout = "90s"
keep_downloads = true

[log]
level = "debug"

[s3]
region = "eu-west-1"
endpoint = "http://localhost:9000"
use_path_style = true
`)

	t.Run("file", func(t *testing.T) {
		cfg, err := loadConfig(context.Background(), dir, envconfig.MapLookuper(nil))
		if err != nil {
			t.Fatalf("loadConfig() error = %v", err)
		}
		if cfg.Tap != "~/taps/mobile-tools" || cfg.Jobs != 2 || !cfg.KeepDownloads {
			t.Errorf("cfg = %+v", cfg)
		}
		if d, _ := cfg.Timeout(); d != 90*time.Second {
			t.Errorf("Timeout() = %v, want 90s", d)
		}
		if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
			t.Errorf("Log = %+v", cfg.Log)
		}
		if cfg.S3.Region != "eu-west-1" || !cfg.S3.UsePathStyle {
			t.Errorf("S3 = %+v", cfg.S3)
		}
	})

	t.Run("environment wins", func(t *testing.T) {
		cfg, err := loadConfig(context.Background(), dir, envconfig.MapLookuper(map[string]string{
			"TAPCTL_JOBS":             "4",
			"TAPCTL_ALLOW_UNVERIFIED": "true",
			"TAPCTL_LOG_LEVEL":        "warn",
			"TAPCTL_S3_ACCESS_KEY":    "AKIA",
			"TAPCTL_S3_SECRET_KEY":    "secret",
		}))
		if err != nil {
			t.Fatalf("loadConfig() error = %v", err)
		}
		if cfg.Jobs != 4 || !cfg.AllowUnverified || cfg.Log.Level != "warn" {
			t.Errorf("cfg = %+v", cfg)
		}
		if cfg.S3.AccessKey != "AKIA" || cfg.S3.SecretKey != "secret" {
			t.Errorf("S3 credentials = %q, %q", cfg.S3.AccessKey, cfg.S3.SecretKey)
		}
		if cfg.S3.Region != "eu-west-1" {
			t.Errorf("S3.Region = %q, file value should survive", cfg.S3.Region)
		}
	})
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"not toml", "jobs = ", "parse tapctl.toml"},
		{"wrong type", `jobs = "many"`, "parse tapctl.toml"},
		{"bad timeout", `fetch_timeout = "soon"`, "invalid fetch_timeout"},
		{"negative timeout", `fetch_timeout = "-1m"`, "must not be negative"},
		{"negative jobs", `jobs = -1`, "jobs must not be negative"},
		{"bad log format", "[log]\nformat = \"xml\"", "unknown log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(context.Background(), writeConfig(t, tt.content), envconfig.MapLookuper(nil))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("loadConfig() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestTimeout(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"0", 0},
		{"30s", 30 * time.Second},
		{"1h30m", 90 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := (&Config{FetchTimeout: tt.value}).Timeout()
			if err != nil {
				t.Fatalf("Timeout() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Timeout() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	cfg := DefaultConfig()
	cfg.Tap = "/srv/tap"
	cfg.Jobs = 3
	cfg.S3.SecretKey = "never written"
	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "tapctl.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "never written") {
		t.Error("Save() wrote S3 credentials to disk")
	}

	loaded, err := loadConfig(context.Background(), dir, envconfig.MapLookuper(nil))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if loaded.Tap != "/srv/tap" || loaded.Jobs != 3 {
		t.Errorf("loaded = %+v", loaded)
	}
}
