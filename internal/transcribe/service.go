package transcribe

import "context"

// EventKind classifies messages emitted by a transcription run.
type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "complete"
	EventFailed    EventKind = "failed"
)

// Event is one asynchronous message from a transcription run. A run
// emits zero or more progress events followed by exactly one terminal
// complete or failed event, after which the channel is closed.
type Event struct {
	Kind       EventKind
	Percent    float64
	Transcript string
	Err        error
}

// Request contains the sample buffer and per-run engine parameters.
// Samples are single channel at media.SampleRate, normalized amplitudes.
type Request struct {
	Samples   []float32
	ModelPath string
	Language  string
}

// Service is the transcription collaborator contract. Submit starts a
// background run and returns its event stream.
type Service interface {
	Submit(ctx context.Context, req Request) <-chan Event
}

// TranscriptionError reports a failed or empty transcription run.
type TranscriptionError struct {
	Message string
	Err     error
}

// Error formats transcription failures for logs and UI.
func (e *TranscriptionError) Error() string {
	if e == nil {
		return ""
	}
	return "transcription: " + e.Message
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *TranscriptionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
