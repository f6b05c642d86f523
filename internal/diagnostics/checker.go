package diagnostics

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"viral-clipper/internal/domain"
)

// Checker runs environment checks before the first job: external
// binaries, the whisper model, the clip output directory, and the
// Gemini credential.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	readDir    func(string) ([]os.DirEntry, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	getenv     func(string) string
}

// NewChecker builds a checker backed by the real OS.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		readDir:    os.ReadDir,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		getenv:     os.Getenv,
	}
}

// NewCheckerForTests builds a checker with injected OS dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	readDir func(string) ([]os.DirEntry, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	getenv func(string) string,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		readDir:    readDir,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		getenv:     getenv,
	}
}

// Run executes every check and aggregates the results.
func (c *Checker) Run(settings domain.Settings, credential string) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkBinary("ffmpeg", "Decoding audio and cutting clips requires ffmpeg."),
		c.checkBinary("ffprobe", "Reading media metadata requires ffprobe."),
		c.checkBinary("whisper.cpp", "Transcription requires the whisper.cpp CLI."),
		c.checkModel(settings.ModelPath),
		c.checkOutputDir(settings.OutputDir),
		c.checkCredential(credential),
	}

	report := domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		Items:       items,
	}
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			report.HasFailures = true
			break
		}
	}
	return report
}

func (c *Checker) checkBinary(name, hint string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "bin_" + name, Name: name}
	path, err := c.lookPath(name)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("%s is not on PATH.", name)
		item.Hint = hint
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkModel accepts either a model file or a directory holding at
// least one .bin or .gguf file.
func (c *Checker) checkModel(modelPath string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "whisper_model", Name: "Whisper model"}

	if strings.TrimSpace(modelPath) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "No model path configured."
		item.Hint = "Download a whisper model from settings or point the model path at one."
		return item
	}

	info, err := c.stat(modelPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Model path is unavailable: %s", modelPath)
		item.Hint = "Download a whisper model from settings or point the model path at one."
		return item
	}

	if !info.IsDir() {
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Using model file %s", modelPath)
		return item
	}

	entries, err := c.readDir(modelPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot list model directory: %s", modelPath)
		item.Hint = "Check directory permissions."
		return item
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".bin", ".gguf":
			item.Status = domain.DiagnosticStatusPass
			item.Message = fmt.Sprintf("Model directory %s contains a usable model.", modelPath)
			return item
		}
	}

	item.Status = domain.DiagnosticStatusFail
	item.Message = fmt.Sprintf("No .bin or .gguf models in %s", modelPath)
	item.Hint = "Download a whisper model from settings or point the model path at one."
	return item
}

// checkOutputDir creates the clip directory if needed and probes it
// with a throwaway file.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "output_dir", Name: "Clip output directory"}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "No output directory configured."
		item.Hint = "Choose a folder where finished clips can be written."
		return item
	}

	if err := c.mkdirAll(outputDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create %s", outputDir)
		item.Hint = "Choose a writable folder for finished clips."
		return item
	}

	probe, err := c.createTemp(outputDir, ".clip-write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("%s is not writable.", outputDir)
		item.Hint = "Choose a writable folder for finished clips."
		return item
	}
	probePath := probe.Name()
	_ = probe.Close()
	_ = c.remove(probePath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Clips will be written to %s", outputDir)
	return item
}

// checkCredential looks at the provided key, falling back to the
// GEMINI_API_KEY environment variable.
func (c *Checker) checkCredential(credential string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "gemini_key", Name: "Gemini API key"}

	if strings.TrimSpace(credential) == "" {
		credential = c.getenv("GEMINI_API_KEY")
	}
	if strings.TrimSpace(credential) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "No Gemini API key available."
		item.Hint = "Paste a key in the app or set GEMINI_API_KEY in the environment."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "API key is set."
	return item
}
