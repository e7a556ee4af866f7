package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestValidatePreset_Valid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "duel.json",
		`{"name": "Duel", "description": "Two players", "max_players": 2, "track_length": 20}`)

	result := validatePreset(path)
	if !result.Valid {
		t.Fatalf("Expected valid preset, got errors: %v", result.Notes)
	}
	if result.File != "duel.json" {
		t.Errorf("Expected file duel.json, got %s", result.File)
	}
	if !strings.Contains(strings.Join(result.Notes, "\n"), "about 6 rolls") {
		t.Errorf("Expected roll estimate in notes, got %v", result.Notes)
	}
}

func TestValidatePreset_ShortTrackWarning(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tiny.json",
		`{"name": "Tiny", "max_players": 2, "track_length": 5}`)

	result := validatePreset(path)
	if !result.Valid {
		t.Fatalf("Expected valid preset, got errors: %v", result.Notes)
	}
	if !strings.Contains(strings.Join(result.Notes, "\n"), "first roll can win") {
		t.Errorf("Expected short track warning, got %v", result.Notes)
	}
}

func TestValidatePreset_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"broken.json":   `{not json`,
		"nameless.json": `{"max_players": 2, "track_length": 20}`,
		"crowded.json":  `{"name": "Crowd", "max_players": 100, "track_length": 20}`,
		"stub.json":     `{"name": "Stub", "max_players": 2, "track_length": 1}`,
	}
	for name, content := range tests {
		path := writeFile(t, dir, name, content)
		if result := validatePreset(path); result.Valid {
			t.Errorf("%s: expected invalid preset", name)
		}
	}
}

func TestExpectedRolls(t *testing.T) {
	tests := []struct {
		track int
		want  int
	}{
		{2, 1},
		{8, 2},
		{30, 9},
	}
	for _, tt := range tests {
		if got := expectedRolls(tt.track); got != tt.want {
			t.Errorf("expectedRolls(%d) = %d, want %d", tt.track, got, tt.want)
		}
	}
}

func TestValidatePresets_Report(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "duel.json", `{"name": "Duel", "max_players": 2, "track_length": 20}`)

	var out bytes.Buffer
	ok, err := validatePresets(&out, dir)
	if err != nil {
		t.Fatalf("validatePresets failed: %v", err)
	}
	if !ok {
		t.Errorf("Expected all presets valid, report:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "All presets are valid") {
		t.Errorf("Unexpected report:\n%s", out.String())
	}

	writeFile(t, dir, "bad.json", `[]`)
	out.Reset()
	ok, err = validatePresets(&out, dir)
	if err != nil {
		t.Fatalf("validatePresets failed: %v", err)
	}
	if ok {
		t.Error("Expected a failing report")
	}
	if !strings.Contains(out.String(), "❌ INVALID") {
		t.Errorf("Unexpected report:\n%s", out.String())
	}
}

func TestValidatePresets_EmptyDir(t *testing.T) {
	if _, err := validatePresets(&bytes.Buffer{}, t.TempDir()); err == nil {
		t.Error("Expected error for a directory without presets")
	}
}

func TestShippedPresets(t *testing.T) {
	ok, err := validatePresets(&bytes.Buffer{}, "configs")
	if err != nil {
		t.Fatalf("validatePresets failed: %v", err)
	}
	if !ok {
		t.Error("Expected shipped presets to be valid")
	}
}
