package bootstrap

import (
	"context"
	"testing"
	"time"

	"viral-clipper/internal/analyze"
	"viral-clipper/internal/clip"
	"viral-clipper/internal/domain"
	"viral-clipper/internal/jobs"
	"viral-clipper/internal/pipeline"
	"viral-clipper/internal/transcribe"
)

// fakeStore returns deterministic settings for App tests.
type fakeStore struct {
	settings domain.Settings
	saved    *domain.Settings
}

// Load returns preconfigured settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	return s.settings, nil
}

// Save captures the persisted settings.
func (s *fakeStore) Save(settings domain.Settings) error {
	s.saved = &settings
	s.settings = settings
	return nil
}

type stubDecoder struct{}

func (stubDecoder) DecodeMono16k(ctx context.Context, inputPath string) ([]float32, error) {
	return []float32{0}, nil
}

// stubTranscriber completes immediately, or after gate is closed.
type stubTranscriber struct {
	gate chan struct{}
}

func (s stubTranscriber) Submit(ctx context.Context, req transcribe.Request) <-chan transcribe.Event {
	out := make(chan transcribe.Event, 2)
	go func() {
		defer close(out)
		out <- transcribe.Event{Kind: transcribe.EventProgress, Percent: 50}
		if s.gate != nil {
			<-s.gate
		}
		out <- transcribe.Event{Kind: transcribe.EventCompleted, Transcript: "hello world"}
	}()
	return out
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, req analyze.Request) (domain.AnalysisResult, error) {
	return domain.AnalysisResult{
		Summary:     "summary",
		ViralClips:  []domain.ClipCandidate{{Start: 1, End: 3, Reason: "peak"}},
		SocialPosts: []string{"post"},
	}, nil
}

type stubCutter struct{}

func (stubCutter) Extract(ctx context.Context, req clip.Request) (domain.EnrichedClip, error) {
	return domain.EnrichedClip{ClipCandidate: req.Candidate, OutputPath: req.OutputPath}, nil
}

// newTestApp assembles an App over in-memory collaborators.
func newTestApp(t *testing.T, transcriber stubTranscriber) *App {
	t.Helper()
	store := &fakeStore{settings: domain.Settings{
		ModelPath: "/tmp/model.bin",
		OutputDir: t.TempDir(),
		Language:  "auto",
	}}
	app := &App{
		Store:  store,
		Jobs:   jobs.NewManager(),
		events: jobs.NewEventBus(100),
	}
	app.Pipeline = pipeline.New(pipeline.Config{
		Jobs:        app.Jobs,
		Decoder:     stubDecoder{},
		Transcriber: transcriber,
		Analyzer:    stubAnalyzer{},
		Cutter:      stubCutter{},
		OnEvent:     app.publishEvent,
	})
	return app
}

// TestStartJobRunsPipelineAndPublishesEvents follows one job end to end.
func TestStartJobRunsPipelineAndPublishesEvents(t *testing.T) {
	app := newTestApp(t, stubTranscriber{})

	job, err := app.StartJob("/tmp/input.mp4", "api-key")
	if err != nil {
		t.Fatalf("start job: %v", err)
	}
	if job.Stage != domain.StageTranscribing {
		t.Fatalf("stage = %s, want transcribing", job.Stage)
	}

	waitForStage(t, app, domain.StageComplete)

	final := app.CurrentJob()
	if final.Transcript != "hello world" {
		t.Fatalf("transcript = %q", final.Transcript)
	}
	if len(final.Clips) != 1 {
		t.Fatalf("clips = %d, want 1", len(final.Clips))
	}

	events := app.JobEvents(0)
	if len(events) == 0 {
		t.Fatal("expected events")
	}
	assertEventTypeExists(t, events, jobs.EventTypeStatus)
	assertEventTypeExists(t, events, jobs.EventTypeProgress)
}

// TestStartJobIgnoresSecondCallWhileRunning checks the busy guard.
func TestStartJobIgnoresSecondCallWhileRunning(t *testing.T) {
	release := make(chan struct{})
	app := newTestApp(t, stubTranscriber{gate: release})

	first, err := app.StartJob("/tmp/input.mp4", "api-key")
	if err != nil {
		t.Fatalf("start first: %v", err)
	}
	second, err := app.StartJob("/tmp/other.mp4", "api-key")
	if err != nil {
		t.Fatalf("start second: %v", err)
	}
	if second.ID != first.ID || second.InputPath != "/tmp/input.mp4" {
		t.Fatalf("second start replaced running job: %+v", second)
	}

	close(release)
	waitForStage(t, app, domain.StageComplete)
}

// TestStartJobRejectsMissingCredential checks the idle no-op path.
func TestStartJobRejectsMissingCredential(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	app := newTestApp(t, stubTranscriber{})

	job, err := app.StartJob("/tmp/input.mp4", "")
	if err != nil {
		t.Fatalf("start job: %v", err)
	}
	if job.Stage != domain.StageIdle {
		t.Fatalf("stage = %s, want idle", job.Stage)
	}
}

// TestSaveSettingsFillsDefaults checks normalization on save.
func TestSaveSettingsFillsDefaults(t *testing.T) {
	store := &fakeStore{}
	app := &App{Store: store, Jobs: jobs.NewManager(), events: jobs.NewEventBus(10)}

	saved, err := app.SaveSettings(domain.Settings{
		ModelPath: "  /models/ggml-base.bin  ",
		OutputDir: "/clips",
	})
	if err != nil {
		t.Fatalf("save settings: %v", err)
	}
	if saved.ModelPath != "/models/ggml-base.bin" {
		t.Fatalf("model path = %q", saved.ModelPath)
	}
	if saved.Language != "auto" {
		t.Fatalf("language = %q, want auto", saved.Language)
	}
	if saved.AnalysisModel == "" {
		t.Fatal("analysis model default not applied")
	}
	if store.saved == nil {
		t.Fatal("settings were not persisted")
	}
}

// waitForStage polls until the current job reaches the wanted stage.
func waitForStage(t *testing.T, app *App, want domain.Stage) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if app.CurrentJob().Stage == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("stage = %s, want %s", app.CurrentJob().Stage, want)
}

// assertEventTypeExists verifies at least one event of given type exists.
func assertEventTypeExists(t *testing.T, events []jobs.Event, want jobs.EventType) {
	t.Helper()
	for _, event := range events {
		if event.Type == want {
			return
		}
	}
	t.Fatalf("event type %s not found", want)
}
