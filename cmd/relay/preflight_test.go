package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPreflight_MissingToken(t *testing.T) {
	cfg := defaultConfig()

	err := runPreflightChecks(cfg)
	if err == nil {
		t.Fatal("expected error for missing token")
	}
	if !strings.Contains(err.Error(), "relay init") {
		t.Errorf("expected actionable hint, got: %v", err)
	}
}

func TestPreflight_MissingBinary(t *testing.T) {
	cfg := defaultConfig()
	cfg.TelegramToken = "tok"
	cfg.ClaudeBinary = "definitely-not-a-real-binary-xyz"

	err := runPreflightChecks(cfg)
	if err == nil {
		t.Fatal("expected error for missing assistant binary")
	}
	if !strings.Contains(err.Error(), "not found in PATH") {
		t.Errorf("expected PATH error, got: %v", err)
	}
}

func TestPreflight_WorkingDirMustExist(t *testing.T) {
	cfg := defaultConfig()
	cfg.TelegramToken = "tok"
	cfg.ClaudeBinary = "sh" // always on PATH
	cfg.WorkingDir = filepath.Join(t.TempDir(), "does-not-exist")

	if err := runPreflightChecks(cfg); err == nil {
		t.Fatal("expected error for absent working_dir")
	}
}

func TestPreflight_WorkingDirMustBeDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	file := filepath.Join(tmpDir, "a-file")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := defaultConfig()
	cfg.TelegramToken = "tok"
	cfg.ClaudeBinary = "sh"
	cfg.WorkingDir = file

	err := runPreflightChecks(cfg)
	if err == nil {
		t.Fatal("expected error for working_dir pointing at a file")
	}
	if !strings.Contains(err.Error(), "not a directory") {
		t.Errorf("expected directory error, got: %v", err)
	}
}

func TestPreflight_Passes(t *testing.T) {
	cfg := defaultConfig()
	cfg.TelegramToken = "tok"
	cfg.ClaudeBinary = "sh"
	cfg.WorkingDir = t.TempDir()

	if err := runPreflightChecks(cfg); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
