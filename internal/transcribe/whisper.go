package transcribe

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// streamResult is an internal process execution response for runs that
// stream stderr line by line.
type streamResult struct {
	Stderr   string
	ExitCode int
}

// streamRunner abstracts process execution with live stderr observation.
type streamRunner interface {
	Run(ctx context.Context, name string, args []string, onLine func(string)) (streamResult, error)
}

// execStreamRunner executes commands via os/exec with a stderr pipe.
type execStreamRunner struct{}

// Run executes one command, forwarding each stderr line as it arrives.
func (r *execStreamRunner) Run(ctx context.Context, name string, args []string, onLine func(string)) (streamResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return streamResult{ExitCode: -1}, err
	}

	if err := cmd.Start(); err != nil {
		return streamResult{ExitCode: -1}, err
	}

	var stderr bytes.Buffer
	scanner := bufio.NewScanner(stderrPipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		stderr.WriteString(line)
		stderr.WriteByte('\n')
		if onLine != nil {
			onLine(line)
		}
	}

	err = cmd.Wait()
	result := streamResult{
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// WhisperEngine runs whisper.cpp on an in-memory sample buffer and
// reports progress over an event channel.
type WhisperEngine struct {
	whisperPath string
	runner      streamRunner
	mkdirTemp   func(dir, pattern string) (string, error)
	removeAll   func(path string) error
	writeFile   func(name string, data []byte, perm os.FileMode) error
	readFile    func(name string) ([]byte, error)
	stat        func(name string) (os.FileInfo, error)
	readDir     func(name string) ([]os.DirEntry, error)
}

// NewWhisperEngine constructs the production engine with OS dependencies.
func NewWhisperEngine() *WhisperEngine {
	return &WhisperEngine{
		whisperPath: "whisper.cpp",
		runner:      &execStreamRunner{},
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
		writeFile:   os.WriteFile,
		readFile:    os.ReadFile,
		stat:        os.Stat,
		readDir:     os.ReadDir,
	}
}

// NewWhisperEngineForTests constructs an engine with injectable dependencies.
func NewWhisperEngineForTests(whisperPath string, runner streamRunner) *WhisperEngine {
	return &WhisperEngine{
		whisperPath: whisperPath,
		runner:      runner,
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
		writeFile:   os.WriteFile,
		readFile:    os.ReadFile,
		stat:        os.Stat,
		readDir:     os.ReadDir,
	}
}

// Submit starts one transcription run on its own goroutine and returns
// the event stream. The channel is closed after the terminal event.
func (e *WhisperEngine) Submit(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		e.run(ctx, req, events)
	}()
	return events
}

// run executes one whisper.cpp invocation end to end.
func (e *WhisperEngine) run(ctx context.Context, req Request, events chan<- Event) {
	if len(req.Samples) == 0 {
		events <- failure("sample buffer is empty", nil)
		return
	}

	modelPath, err := e.resolveModelPath(req.ModelPath)
	if err != nil {
		events <- failure(err.Error(), err)
		return
	}

	tempDir, err := e.mkdirTemp("", "viral-clipper-*")
	if err != nil {
		events <- failure("failed to create temporary workspace", err)
		return
	}
	defer func() {
		_ = e.removeAll(tempDir)
	}()

	wavPath := filepath.Join(tempDir, "audio-16k-mono.wav")
	if err := e.writeFile(wavPath, encodeWAV(req.Samples), 0o644); err != nil {
		events <- failure("failed to stage audio for transcription", err)
		return
	}

	textBase := filepath.Join(tempDir, "transcript")
	args := buildWhisperArgs(modelPath, wavPath, textBase, req.Language)

	lastPercent := -1.0
	result, runErr := e.runner.Run(ctx, e.whisperPath, args, func(line string) {
		percent, ok := parseProgressLine(line)
		if !ok || percent < lastPercent {
			return
		}
		lastPercent = percent
		events <- Event{Kind: EventProgress, Percent: percent}
	})
	if runErr != nil {
		events <- failure(
			fmt.Sprintf("whisper.cpp failed (exit=%d): %s", result.ExitCode, tailOf(result.Stderr)),
			runErr,
		)
		return
	}

	content, err := e.readFile(textBase + ".txt")
	if err != nil {
		events <- failure("whisper.cpp completed but transcript file is missing", err)
		return
	}

	events <- Event{Kind: EventCompleted, Transcript: strings.TrimSpace(string(content))}
}

// failure builds a terminal failed event.
func failure(message string, err error) Event {
	return Event{Kind: EventFailed, Err: &TranscriptionError{Message: message, Err: err}}
}

// resolveModelPath returns model file path from file or directory input.
func (e *WhisperEngine) resolveModelPath(rawPath string) (string, error) {
	modelPath := strings.TrimSpace(rawPath)
	if modelPath == "" {
		return "", fmt.Errorf("model path is required")
	}

	info, err := e.stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path: %s", modelPath)
	}
	if !info.IsDir() {
		return modelPath, nil
	}

	entries, err := e.readDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s", modelPath)
	}

	modelNames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".bin" || ext == ".gguf" {
			modelNames = append(modelNames, entry.Name())
		}
	}
	if len(modelNames) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", modelPath)
	}

	sort.Strings(modelNames)
	return filepath.Join(modelPath, modelNames[0]), nil
}

// normalizeLanguage maps "auto" and empty language to no CLI override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

// buildWhisperArgs builds whisper.cpp args for txt export with progress.
func buildWhisperArgs(modelPath, audioPath, textBase, language string) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", textBase,
		"-otxt",
		"-pp",
	}

	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}

	return args
}

// parseProgressLine extracts a completion percentage from whisper.cpp
// stderr lines of the form "...: progress =  42%".
func parseProgressLine(line string) (float64, bool) {
	idx := strings.Index(line, "progress =")
	if idx < 0 {
		return 0, false
	}

	rest := strings.TrimSpace(line[idx+len("progress ="):])
	rest = strings.TrimSuffix(rest, "%")
	percent, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil {
		return 0, false
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return percent, true
}

// tailOf returns the last non-empty stderr line for compact messages.
func tailOf(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "no output"
}
