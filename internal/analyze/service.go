package analyze

import (
	"context"

	"viral-clipper/internal/domain"
)

// Request carries the credential and transcript for one analysis call.
// The transcript is assumed non-empty and within the model's limits;
// the caller does not chunk or truncate.
type Request struct {
	Credential string
	Model      string
	Transcript string
}

// Service is the analysis collaborator contract. One call, no retries.
type Service interface {
	Analyze(ctx context.Context, req Request) (domain.AnalysisResult, error)
}

// AnalysisError reports a rejected credential, an unreachable backend,
// or a response that does not parse into the expected shape.
type AnalysisError struct {
	Message string
	Err     error
}

// Error formats analysis failures for logs and UI.
func (e *AnalysisError) Error() string {
	if e == nil {
		return ""
	}
	return "analysis: " + e.Message
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *AnalysisError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
