// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
build:
  command: "go"
  args: ["build", "./..."]
tasks:
  - name: compile
    roots: ["./src"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Build.Command != "go" || len(cfg.Build.Args) != 2 {
		t.Errorf("build command not loaded: %+v", cfg.Build)
	}
	if cfg.QuietPeriod != DefaultQuietPeriod {
		t.Errorf("quiet period default = %v, want %v", cfg.QuietPeriod, DefaultQuietPeriod)
	}
	if cfg.WebServer.Port != 9180 {
		t.Errorf("web port default = %d", cfg.WebServer.Port)
	}
	if len(cfg.Tasks) != 1 || cfg.Tasks[0].Name != "compile" {
		t.Errorf("tasks not loaded: %+v", cfg.Tasks)
	}
}

func TestLoad_GeneratesAndPersistsInstanceID(t *testing.T) {
	path := writeConfig(t, `
build:
  command: "make"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.InstanceID == "" {
		t.Fatal("instance ID should be generated")
	}

	viper.Reset()
	again, err := Load(path)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if again.InstanceID != cfg.InstanceID {
		t.Errorf("instance ID not persisted: %q vs %q", again.InstanceID, cfg.InstanceID)
	}
}

func TestLoad_RejectsNegativeQuietPeriod(t *testing.T) {
	path := writeConfig(t, `
build:
  command: "make"
quiet_period: -5ms
`)

	if _, err := Load(path); err == nil {
		t.Error("negative quiet period should be rejected")
	}
}

func TestLoad_RejectsMissingCommand(t *testing.T) {
	path := writeConfig(t, `
build:
  command: ""
`)

	if _, err := Load(path); err == nil {
		t.Error("empty build command should be rejected")
	}
}

func TestApplyCLIFlags(t *testing.T) {
	cfg := &Config{QuietPeriod: DefaultQuietPeriod}
	ApplyCLIFlags(cfg, "go", "/work", 500*time.Millisecond, 8080)

	if cfg.Build.Command != "go" || cfg.Build.WorkingDir != "/work" {
		t.Errorf("build flags not applied: %+v", cfg.Build)
	}
	if cfg.QuietPeriod != 500*time.Millisecond || cfg.WebServer.Port != 8080 {
		t.Errorf("flags not applied: %+v", cfg)
	}

	ApplyCLIFlags(cfg, "", "", 0, 0)
	if cfg.Build.Command != "go" {
		t.Errorf("zero-value flags must not override")
	}
}
