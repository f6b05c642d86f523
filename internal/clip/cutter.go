package clip

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"viral-clipper/internal/domain"
	"viral-clipper/internal/media"
)

// ExtractionError reports one clip range that could not be cut.
type ExtractionError struct {
	Message string           `json:"message"`
	Log     media.CommandLog `json:"commandLog"`
	Err     error            `json:"-"`
}

// Error formats extraction failures for logs and UI.
func (e *ExtractionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Log.Command == "" {
		return "extraction: " + e.Message
	}
	return fmt.Sprintf("extraction: %s (cmd=%s exit=%d)", e.Message, e.Log.Command, e.Log.ExitCode)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *ExtractionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Request identifies one sub-range to cut out of the source media.
type Request struct {
	InputPath  string
	Candidate  domain.ClipCandidate
	OutputPath string
}

// Service is the clip extraction collaborator contract. Extraction is
// CPU-bound local work; calls are expected to take real time.
type Service interface {
	Extract(ctx context.Context, req Request) (domain.EnrichedClip, error)
}

// FFmpegCutter extracts clip ranges by re-encoding with ffmpeg.
type FFmpegCutter struct {
	ffmpegPath string
	runner     media.Runner
	mkdirAll   func(path string, perm os.FileMode) error
	stat       func(name string) (os.FileInfo, error)
}

// NewFFmpegCutter constructs the production cutter with OS dependencies.
func NewFFmpegCutter() *FFmpegCutter {
	return &FFmpegCutter{
		ffmpegPath: "ffmpeg",
		runner:     &media.ExecRunner{},
		mkdirAll:   os.MkdirAll,
		stat:       os.Stat,
	}
}

// NewFFmpegCutterForTests constructs a cutter with injectable dependencies.
func NewFFmpegCutterForTests(ffmpegPath string, runner media.Runner, mkdirAll func(string, os.FileMode) error, stat func(string) (os.FileInfo, error)) *FFmpegCutter {
	return &FFmpegCutter{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		mkdirAll:   mkdirAll,
		stat:       stat,
	}
}

// Extract cuts one candidate range and returns its playable handle.
func (c *FFmpegCutter) Extract(ctx context.Context, req Request) (domain.EnrichedClip, error) {
	if strings.TrimSpace(req.InputPath) == "" {
		return domain.EnrichedClip{}, &ExtractionError{Message: "source media path is required"}
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return domain.EnrichedClip{}, &ExtractionError{Message: "clip output path is required"}
	}
	if req.Candidate.Start < 0 || req.Candidate.Start >= req.Candidate.End {
		return domain.EnrichedClip{}, &ExtractionError{
			Message: fmt.Sprintf("invalid clip range %v..%v", req.Candidate.Start, req.Candidate.End),
		}
	}

	if err := c.mkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return domain.EnrichedClip{}, &ExtractionError{
			Message: fmt.Sprintf("cannot create clip directory: %s", filepath.Dir(req.OutputPath)),
			Err:     err,
		}
	}

	args := buildClipArgs(req.InputPath, req.Candidate.Start, req.Candidate.End, req.OutputPath)
	result, runErr := c.runner.Run(ctx, c.ffmpegPath, args...)
	log := media.CommandLog{
		Command:  c.ffmpegPath,
		Args:     args,
		ExitCode: result.ExitCode,
		Stderr:   result.Stderr,
	}
	if runErr != nil {
		return domain.EnrichedClip{}, &ExtractionError{
			Message: fmt.Sprintf("ffmpeg failed cutting %s..%s", formatSeconds(req.Candidate.Start), formatSeconds(req.Candidate.End)),
			Log:     log,
			Err:     runErr,
		}
	}

	if _, err := c.stat(req.OutputPath); err != nil {
		return domain.EnrichedClip{}, &ExtractionError{
			Message: "ffmpeg completed but clip file is missing",
			Log:     log,
			Err:     err,
		}
	}

	return domain.EnrichedClip{
		ClipCandidate: req.Candidate,
		OutputPath:    req.OutputPath,
	}, nil
}

// buildClipArgs builds ffmpeg args for one re-encoded sub-range cut.
// Seeking before input keeps the cut fast; re-encoding keeps it frame
// accurate regardless of the source's keyframe layout.
func buildClipArgs(inputPath string, start, end float64, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-i", inputPath,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-c:a", "aac",
		"-movflags", "+faststart",
		outputPath,
	}
}

// formatSeconds renders seconds with millisecond precision for ffmpeg.
func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// OutputPathFor builds the clip artifact path for one candidate index.
func OutputPathFor(outputDir, inputPath string, index int) string {
	base := filepath.Base(inputPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.TrimSpace(name) == "" {
		name = "clip"
	}
	return filepath.Join(outputDir, fmt.Sprintf("%s-clip-%02d.mp4", name, index+1))
}
