package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// fakeStreamRunner simulates whisper.cpp execution with stderr lines.
type fakeStreamRunner struct {
	run func(ctx context.Context, name string, args []string, onLine func(string)) (streamResult, error)
}

// Run delegates to injected behavior.
func (f *fakeStreamRunner) Run(ctx context.Context, name string, args []string, onLine func(string)) (streamResult, error) {
	if f.run == nil {
		return streamResult{}, nil
	}
	return f.run(ctx, name, args, onLine)
}

// collectEvents drains a run's event stream into a slice.
func collectEvents(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

// TestWhisperEngineEmitsProgressThenComplete checks the happy path
// event sequence: ordered progress events followed by one terminal.
func TestWhisperEngineEmitsProgressThenComplete(t *testing.T) {
	root := t.TempDir()
	modelPath := filepath.Join(root, "ggml-base.bin")
	mustWriteFile(t, modelPath, "model")

	var gotName string
	runner := &fakeStreamRunner{
		run: func(ctx context.Context, name string, args []string, onLine func(string)) (streamResult, error) {
			gotName = name
			onLine("whisper_init_from_file: loading model")
			onLine("whisper_print_progress_callback: progress =  25%")
			onLine("whisper_print_progress_callback: progress =  80%")
			onLine("whisper_print_progress_callback: progress = 100%")
			base := argValue(args, "-of")
			mustWriteFile(t, base+".txt", "  and the people said amen  ")
			return streamResult{ExitCode: 0}, nil
		},
	}

	engine := NewWhisperEngineForTests("whisper-custom", runner)
	events := collectEvents(engine.Submit(context.Background(), Request{
		Samples:   []float32{0, 0.1, 0.2},
		ModelPath: modelPath,
		Language:  "auto",
	}))

	if gotName != "whisper-custom" {
		t.Fatalf("command = %q, want whisper-custom", gotName)
	}
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4: %+v", len(events), events)
	}

	wantPercents := []float64{25, 80, 100}
	for i, want := range wantPercents {
		if events[i].Kind != EventProgress {
			t.Fatalf("events[%d].Kind = %s, want progress", i, events[i].Kind)
		}
		if events[i].Percent != want {
			t.Fatalf("events[%d].Percent = %v, want %v", i, events[i].Percent, want)
		}
	}

	last := events[len(events)-1]
	if last.Kind != EventCompleted {
		t.Fatalf("terminal kind = %s, want complete", last.Kind)
	}
	if last.Transcript != "and the people said amen" {
		t.Fatalf("transcript = %q", last.Transcript)
	}
}

// TestWhisperEngineDropsRegressingProgress checks non-monotone filtering.
func TestWhisperEngineDropsRegressingProgress(t *testing.T) {
	root := t.TempDir()
	modelPath := filepath.Join(root, "model.bin")
	mustWriteFile(t, modelPath, "model")

	runner := &fakeStreamRunner{
		run: func(ctx context.Context, name string, args []string, onLine func(string)) (streamResult, error) {
			onLine("progress =  50%")
			onLine("progress =  40%")
			onLine("progress =  50%")
			mustWriteFile(t, argValue(args, "-of")+".txt", "text")
			return streamResult{}, nil
		},
	}

	engine := NewWhisperEngineForTests("whisper.cpp", runner)
	events := collectEvents(engine.Submit(context.Background(), Request{
		Samples:   []float32{0.1},
		ModelPath: modelPath,
	}))

	progress := 0
	for _, ev := range events {
		if ev.Kind == EventProgress {
			progress++
		}
	}
	// The regressing 40% line is dropped; the repeated 50% is kept.
	if progress != 2 {
		t.Fatalf("progress events = %d, want 2: %+v", progress, events)
	}
}

// TestWhisperEngineFailureEmitsTerminalError checks command failure path.
func TestWhisperEngineFailureEmitsTerminalError(t *testing.T) {
	root := t.TempDir()
	modelPath := filepath.Join(root, "model.bin")
	mustWriteFile(t, modelPath, "model")

	runner := &fakeStreamRunner{
		run: func(ctx context.Context, name string, args []string, onLine func(string)) (streamResult, error) {
			return streamResult{Stderr: "error: bad model\n", ExitCode: 3}, errors.New("exit status 3")
		},
	}

	engine := NewWhisperEngineForTests("whisper.cpp", runner)
	events := collectEvents(engine.Submit(context.Background(), Request{
		Samples:   []float32{0.1},
		ModelPath: modelPath,
	}))

	if len(events) != 1 {
		t.Fatalf("events = %d, want 1 terminal: %+v", len(events), events)
	}
	if events[0].Kind != EventFailed {
		t.Fatalf("kind = %s, want failed", events[0].Kind)
	}

	var tErr *TranscriptionError
	if !errors.As(events[0].Err, &tErr) {
		t.Fatalf("error type = %T, want *TranscriptionError", events[0].Err)
	}
}

// TestWhisperEngineRequiresSamples checks empty-buffer rejection.
func TestWhisperEngineRequiresSamples(t *testing.T) {
	engine := NewWhisperEngineForTests("whisper.cpp", &fakeStreamRunner{})
	events := collectEvents(engine.Submit(context.Background(), Request{ModelPath: "/m.bin"}))

	if len(events) != 1 || events[0].Kind != EventFailed {
		t.Fatalf("expected single failed event, got %+v", events)
	}
}

// TestWhisperEngineModelDirectoryResolution checks lexical model pick.
func TestWhisperEngineModelDirectoryResolution(t *testing.T) {
	root := t.TempDir()
	modelDir := filepath.Join(root, "models")
	mustWriteFile(t, filepath.Join(modelDir, "a-small.gguf"), "model")
	mustWriteFile(t, filepath.Join(modelDir, "z-large.bin"), "model")

	var usedModel string
	runner := &fakeStreamRunner{
		run: func(ctx context.Context, name string, args []string, onLine func(string)) (streamResult, error) {
			usedModel = argValue(args, "-m")
			mustWriteFile(t, argValue(args, "-of")+".txt", "text")
			return streamResult{}, nil
		},
	}

	engine := NewWhisperEngineForTests("whisper.cpp", runner)
	events := collectEvents(engine.Submit(context.Background(), Request{
		Samples:   []float32{0.1},
		ModelPath: modelDir,
	}))

	if events[len(events)-1].Kind != EventCompleted {
		t.Fatalf("terminal = %+v", events[len(events)-1])
	}
	if want := filepath.Join(modelDir, "a-small.gguf"); usedModel != want {
		t.Fatalf("used model = %q, want %q", usedModel, want)
	}
}

// TestBuildWhisperArgsAutoLanguage verifies no language flag for auto mode.
func TestBuildWhisperArgsAutoLanguage(t *testing.T) {
	args := buildWhisperArgs("/m.bin", "/audio.wav", "/out/base", "auto")
	if hasArg(args, "-l") {
		t.Fatalf("did not expect -l in args: %v", args)
	}
	if !hasArg(args, "-pp") {
		t.Fatalf("expected progress flag in args: %v", args)
	}
}

// TestBuildWhisperArgsFixedLanguage verifies language flag for fixed mode.
func TestBuildWhisperArgsFixedLanguage(t *testing.T) {
	args := buildWhisperArgs("/m.bin", "/audio.wav", "/out/base", "ru")
	if got := argValue(args, "-l"); got != "ru" {
		t.Fatalf("language arg = %q, want ru", got)
	}
}

// TestParseProgressLine verifies stderr progress extraction.
func TestParseProgressLine(t *testing.T) {
	cases := []struct {
		line    string
		percent float64
		ok      bool
	}{
		{"whisper_print_progress_callback: progress =  10%", 10, true},
		{"progress = 100%", 100, true},
		{"progress = 150%", 100, true},
		{"whisper_init: loading model", 0, false},
		{"progress = oops", 0, false},
	}

	for _, tc := range cases {
		percent, ok := parseProgressLine(tc.line)
		if ok != tc.ok || percent != tc.percent {
			t.Fatalf("parseProgressLine(%q) = (%v, %v), want (%v, %v)", tc.line, percent, ok, tc.percent, tc.ok)
		}
	}
}

// mustWriteFile creates parent directory and writes file content.
func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir parent: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}

// argValue returns value for key-style CLI args.
func argValue(args []string, key string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == key {
			return args[i+1]
		}
	}
	return ""
}

// hasArg reports whether args include the target flag.
func hasArg(args []string, key string) bool {
	for _, arg := range args {
		if arg == key {
			return true
		}
	}
	return false
}
