package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"viral-clipper/internal/domain"
)

func foundOnPath(name string) (string, error) { return "/usr/local/bin/" + name, nil }

func emptyEnv(string) string { return "" }

// TestCheckerAllPass covers a fully provisioned environment.
func TestCheckerAllPass(t *testing.T) {
	root := t.TempDir()
	modelDir := filepath.Join(root, "models")
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatalf("mkdir models: %v", err)
	}
	if err := os.WriteFile(filepath.Join(modelDir, "ggml-base.bin"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	checker := NewCheckerForTests(foundOnPath, os.Stat, os.ReadDir, os.MkdirAll, os.CreateTemp, os.Remove, emptyEnv)
	report := checker.Run(domain.Settings{
		ModelPath: modelDir,
		OutputDir: filepath.Join(root, "clips"),
		Language:  "auto",
	}, "some-key")

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	if len(report.Items) != 6 {
		t.Fatalf("items = %d, want 6", len(report.Items))
	}
}

// TestCheckerMissingEverything covers a bare environment.
func TestCheckerMissingEverything(t *testing.T) {
	checker := NewCheckerForTests(
		func(string) (string, error) { return "", errors.New("not found") },
		os.Stat, os.ReadDir, os.MkdirAll, os.CreateTemp, os.Remove, emptyEnv,
	)
	report := checker.Run(domain.Settings{
		ModelPath: "/nope/model",
		OutputDir: "",
	}, "")

	if !report.HasFailures {
		t.Fatal("expected failures")
	}
	for _, id := range []string{"bin_ffmpeg", "bin_ffprobe", "bin_whisper.cpp", "whisper_model", "output_dir", "gemini_key"} {
		assertItemStatus(t, report, id, domain.DiagnosticStatusFail)
	}
}

// TestCheckerModelDirWithoutModels covers a directory with no usable model.
func TestCheckerModelDirWithoutModels(t *testing.T) {
	root := t.TempDir()
	modelDir := filepath.Join(root, "models")
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatalf("mkdir models: %v", err)
	}
	if err := os.WriteFile(filepath.Join(modelDir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	checker := NewCheckerForTests(foundOnPath, os.Stat, os.ReadDir, os.MkdirAll, os.CreateTemp, os.Remove, emptyEnv)
	report := checker.Run(domain.Settings{
		ModelPath: modelDir,
		OutputDir: filepath.Join(root, "clips"),
	}, "key")

	assertItemStatus(t, report, "whisper_model", domain.DiagnosticStatusFail)
}

// TestCheckerCredentialFromEnvironment covers the env var fallback.
func TestCheckerCredentialFromEnvironment(t *testing.T) {
	env := func(key string) string {
		if key == "GEMINI_API_KEY" {
			return "env-key"
		}
		return ""
	}

	root := t.TempDir()
	modelFile := filepath.Join(root, "ggml-tiny.bin")
	if err := os.WriteFile(modelFile, []byte("x"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	checker := NewCheckerForTests(foundOnPath, os.Stat, os.ReadDir, os.MkdirAll, os.CreateTemp, os.Remove, env)
	report := checker.Run(domain.Settings{
		ModelPath: modelFile,
		OutputDir: filepath.Join(root, "clips"),
	}, "")

	assertItemStatus(t, report, "gemini_key", domain.DiagnosticStatusPass)
}

func assertItemStatus(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			if item.Status != want {
				t.Fatalf("item %s: got %s, want %s", id, item.Status, want)
			}
			return
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
}
