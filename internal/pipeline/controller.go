package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"viral-clipper/internal/analyze"
	"viral-clipper/internal/clip"
	"viral-clipper/internal/domain"
	"viral-clipper/internal/jobs"
	"viral-clipper/internal/media"
	"viral-clipper/internal/transcribe"
)

// AudioDecoder converts an input media file into the sample buffer the
// transcription service consumes.
type AudioDecoder interface {
	DecodeMono16k(ctx context.Context, inputPath string) ([]float32, error)
}

// Config wires the controller's collaborators. Jobs, Decoder,
// Transcriber, Analyzer, and Cutter are required.
type Config struct {
	Jobs        *jobs.Manager
	Decoder     AudioDecoder
	Transcriber transcribe.Service
	Analyzer    analyze.Service
	Cutter      clip.Service

	// OnEvent receives every published pipeline event. Optional.
	OnEvent func(jobs.Event)

	// NewJobID overrides job identity token generation. Tests only.
	NewJobID func() string
}

// Controller owns the end-to-end pipeline for the single active job:
// decode, transcription, analysis, and sequential clip extraction. It
// runs one stage at a time and never two stages concurrently; within
// the clipping stage extraction calls are strictly sequential so clip
// order stays deterministic and local decoding pressure stays bounded.
type Controller struct {
	jobs        *jobs.Manager
	decoder     AudioDecoder
	transcriber transcribe.Service
	analyzer    analyze.Service
	cutter      clip.Service
	onEvent     func(jobs.Event)
	newJobID    func() string
}

// New builds a controller from wired collaborators.
func New(cfg Config) *Controller {
	newJobID := cfg.NewJobID
	if newJobID == nil {
		newJobID = uuid.NewString
	}

	return &Controller{
		jobs:        cfg.Jobs,
		decoder:     cfg.Decoder,
		transcriber: cfg.Transcriber,
		analyzer:    cfg.Analyzer,
		cutter:      cfg.Cutter,
		onEvent:     cfg.OnEvent,
		newJobID:    newJobID,
	}
}

// Start begins one job for the given media file and credential. The
// call is a no-op when either argument is missing or a job is already
// active; misuse never disturbs running state. The job itself runs on
// a background goroutine; callers observe it through Snapshot and the
// event sink.
func (c *Controller) Start(inputPath, credential string, settings domain.Settings) domain.Job {
	inputPath = strings.TrimSpace(inputPath)
	credential = strings.TrimSpace(credential)
	if inputPath == "" || credential == "" {
		return c.jobs.Current()
	}

	job := domain.Job{
		ID:            c.newJobID(),
		InputPath:     inputPath,
		StatusMessage: "Decoding audio track",
	}
	if err := c.jobs.Begin(job); err != nil {
		// Already running. Defensive guard, not an error.
		return c.jobs.Current()
	}

	c.emitStatus(job.ID, domain.StageTranscribing, job.StatusMessage)
	go c.run(job.ID, inputPath, credential, settings)
	return c.jobs.Current()
}

// Snapshot returns the current job state for rendering.
func (c *Controller) Snapshot() domain.Job {
	return c.jobs.Current()
}

// run drives one job through every stage. All failures are converted
// into the error stage here; nothing escapes uncaught.
func (c *Controller) run(jobID, inputPath, credential string, settings domain.Settings) {
	ctx := context.Background()

	samples, err := c.decoder.DecodeMono16k(ctx, inputPath)
	if err != nil {
		c.fail(jobID, "Could not read audio from the selected file", err)
		return
	}

	transcript, ok := c.transcribeStage(ctx, jobID, samples, settings)
	if !ok {
		return
	}

	if err := c.jobs.SetTranscript(jobID, transcript); err != nil {
		return
	}
	if err := c.jobs.Transition(jobID, domain.StageAnalyzing, "Analyzing transcript"); err != nil {
		return
	}
	c.emitStatus(jobID, domain.StageAnalyzing, "Analyzing transcript")

	result, err := c.analyzer.Analyze(ctx, analyze.Request{
		Credential: credential,
		Model:      settings.AnalysisModel,
		Transcript: transcript,
	})
	if err != nil {
		c.fail(jobID, "Analysis failed. Check your API key and try again", err)
		return
	}
	if err := c.jobs.SetAnalysis(jobID, result); err != nil {
		return
	}

	if len(result.ViralClips) == 0 {
		c.complete(jobID, "Done. No highlight clips were suggested")
		return
	}

	c.clipStage(ctx, jobID, inputPath, settings, result.ViralClips)
}

// transcribeStage awaits the transcription run's event stream,
// forwarding progress into the status signal. Returns the transcript
// and whether the pipeline should continue.
func (c *Controller) transcribeStage(ctx context.Context, jobID string, samples []float32, settings domain.Settings) (string, bool) {
	if err := c.jobs.SetStatusMessage(jobID, "Transcribing audio"); err != nil {
		return "", false
	}
	c.emitStatus(jobID, domain.StageTranscribing, "Transcribing audio")

	events := c.transcriber.Submit(ctx, transcribe.Request{
		Samples:   samples,
		ModelPath: settings.ModelPath,
		Language:  settings.Language,
	})

	var transcript string
	completed := false
	for event := range events {
		switch event.Kind {
		case transcribe.EventProgress:
			message := fmt.Sprintf("Transcribing audio (%d%%)", int(event.Percent))
			if err := c.jobs.SetStatusMessage(jobID, message); err != nil {
				// Stale run; stop observing, the engine drains on its own.
				return "", false
			}
			c.emit(jobs.Event{
				JobID:   jobID,
				Type:    jobs.EventTypeProgress,
				Stage:   domain.StageTranscribing,
				Message: message,
				Percent: event.Percent,
			})
		case transcribe.EventCompleted:
			transcript = strings.TrimSpace(event.Transcript)
			completed = true
		case transcribe.EventFailed:
			c.fail(jobID, "Transcription failed", event.Err)
			return "", false
		}
	}

	if !completed {
		c.fail(jobID, "Transcription ended without a result", nil)
		return "", false
	}
	if transcript == "" {
		c.fail(jobID, "Transcription produced no text", &transcribe.TranscriptionError{Message: "empty transcript"})
		return "", false
	}
	return transcript, true
}

// clipStage extracts every candidate strictly in order, one at a time.
// The first failing extraction aborts the remaining ones and the job.
func (c *Controller) clipStage(ctx context.Context, jobID, inputPath string, settings domain.Settings, candidates []domain.ClipCandidate) {
	total := len(candidates)
	message := fmt.Sprintf("Cutting clip 1 of %d", total)
	if err := c.jobs.Transition(jobID, domain.StageClipping, message); err != nil {
		return
	}
	c.emitStatus(jobID, domain.StageClipping, message)

	for i, candidate := range candidates {
		if i > 0 {
			message = fmt.Sprintf("Cutting clip %d of %d", i+1, total)
			if err := c.jobs.SetStatusMessage(jobID, message); err != nil {
				return
			}
			c.emitStatus(jobID, domain.StageClipping, message)
		}

		enriched, err := c.cutter.Extract(ctx, clip.Request{
			InputPath:  inputPath,
			Candidate:  candidate,
			OutputPath: clip.OutputPathFor(settings.OutputDir, inputPath, i),
		})
		if err != nil {
			c.fail(jobID, fmt.Sprintf("Failed to cut clip %d of %d", i+1, total), err)
			return
		}

		if err := c.jobs.AppendClip(jobID, enriched); err != nil {
			return
		}
		c.emit(jobs.Event{
			JobID:    jobID,
			Type:     jobs.EventTypeLog,
			Stage:    domain.StageClipping,
			Message:  fmt.Sprintf("Clip %d of %d ready", i+1, total),
			ClipPath: enriched.OutputPath,
		})
	}

	c.complete(jobID, fmt.Sprintf("Done. %d clips ready", total))
}

// complete moves the job to its terminal success stage.
func (c *Controller) complete(jobID, message string) {
	if err := c.jobs.Transition(jobID, domain.StageComplete, message); err != nil {
		return
	}
	c.emit(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeResult,
		Stage:   domain.StageComplete,
		Message: message,
	})
}

// fail converts any stage failure into the startable error stage with
// a displayable message and a detail event for the log view.
func (c *Controller) fail(jobID, message string, cause error) {
	if err := c.jobs.Fail(jobID, message); err != nil {
		// Stale or already-terminal job; drop the late failure.
		return
	}

	c.emitStatus(jobID, domain.StageError, message)

	detail := jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeError,
		Stage:   domain.StageError,
		Message: message,
	}
	if cause != nil {
		detail.Message = fmt.Sprintf("%s: %v", message, cause)

		var dErr *media.DecodeError
		var eErr *clip.ExtractionError
		switch {
		case errors.As(cause, &dErr):
			detail.Command = dErr.Log.Command
			detail.Args = dErr.Log.Args
			detail.ExitCode = dErr.Log.ExitCode
			detail.Stderr = dErr.Log.Stderr
		case errors.As(cause, &eErr):
			detail.Command = eErr.Log.Command
			detail.Args = eErr.Log.Args
			detail.ExitCode = eErr.Log.ExitCode
			detail.Stderr = eErr.Log.Stderr
		}
	}
	c.emit(detail)
}

// emitStatus publishes a normalized status event.
func (c *Controller) emitStatus(jobID string, stage domain.Stage, message string) {
	c.emit(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Stage:   stage,
		Message: message,
	})
}

// emit forwards one event to the configured sink.
func (c *Controller) emit(event jobs.Event) {
	if c.onEvent != nil {
		c.onEvent(event)
	}
}
