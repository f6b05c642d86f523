package jobs

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"viral-clipper/internal/domain"
)

// ErrJobAlreadyRunning is returned when starting a second active job.
var ErrJobAlreadyRunning = errors.New("job already running")

// ErrStaleJob is returned when a mutation carries a job ID that no
// longer matches the current job. Late events from an abandoned run
// must never overwrite a newer job's state.
var ErrStaleJob = errors.New("stale job")

// Manager owns the single allowed job, its stage transitions, and all
// of its data. Every mutation is guarded by the job's identity token.
type Manager struct {
	mu      sync.RWMutex
	current domain.Job
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Job{
			Stage: domain.StageIdle,
		},
	}
}

// Begin installs a new job and moves it to the transcribing stage.
// The previous job's data is discarded at this point.
func (m *Manager) Begin(job domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isRunning(m.current.Stage) {
		return ErrJobAlreadyRunning
	}
	if strings.TrimSpace(job.ID) == "" {
		return fmt.Errorf("job id is required")
	}
	if strings.TrimSpace(job.StatusMessage) == "" {
		return fmt.Errorf("status message is required")
	}

	job.Stage = domain.StageTranscribing
	job.Transcript = ""
	job.Analysis = nil
	job.Clips = nil
	m.current = job
	return nil
}

// Transition validates and applies one stage transition.
func (m *Manager) Transition(jobID string, stage domain.Stage, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkToken(jobID); err != nil {
		return err
	}
	if !isValidTransition(m.current.Stage, stage) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Stage, stage)
	}
	if stage != domain.StageIdle && strings.TrimSpace(message) == "" {
		return fmt.Errorf("status message is required for stage %s", stage)
	}

	m.current.Stage = stage
	m.current.StatusMessage = message
	return nil
}

// SetStatusMessage updates the human-readable status without changing
// the stage. Used by transcription progress events.
func (m *Manager) SetStatusMessage(jobID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkToken(jobID); err != nil {
		return err
	}
	if !isRunning(m.current.Stage) {
		return fmt.Errorf("cannot update status in stage %s", m.current.Stage)
	}
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("status message is required")
	}

	m.current.StatusMessage = message
	return nil
}

// SetTranscript stores the recognized text on the current job.
func (m *Manager) SetTranscript(jobID, transcript string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkToken(jobID); err != nil {
		return err
	}
	if !isRunning(m.current.Stage) {
		return fmt.Errorf("cannot set transcript in stage %s", m.current.Stage)
	}

	m.current.Transcript = transcript
	return nil
}

// SetAnalysis stores the validated analysis result on the current job.
func (m *Manager) SetAnalysis(jobID string, result domain.AnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkToken(jobID); err != nil {
		return err
	}
	if !isRunning(m.current.Stage) {
		return fmt.Errorf("cannot set analysis in stage %s", m.current.Stage)
	}

	copied := result
	copied.ViralClips = append([]domain.ClipCandidate(nil), result.ViralClips...)
	copied.SocialPosts = append([]string(nil), result.SocialPosts...)
	m.current.Analysis = &copied
	return nil
}

// AppendClip appends one extracted clip, preserving candidate order.
func (m *Manager) AppendClip(jobID string, enriched domain.EnrichedClip) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkToken(jobID); err != nil {
		return err
	}
	if m.current.Stage != domain.StageClipping {
		return fmt.Errorf("cannot append clip in stage %s", m.current.Stage)
	}

	m.current.Clips = append(m.current.Clips, enriched)
	return nil
}

// Fail moves the current job to the error stage with a displayable
// message. Already-produced data (transcript, analysis, clips) is kept
// so callers can still inspect it.
func (m *Manager) Fail(jobID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkToken(jobID); err != nil {
		return err
	}
	if !isRunning(m.current.Stage) {
		return fmt.Errorf("cannot fail job in stage %s", m.current.Stage)
	}
	if strings.TrimSpace(message) == "" {
		message = "Job failed"
	}

	m.current.Stage = domain.StageError
	m.current.StatusMessage = message
	return nil
}

// Current returns a deep-copied snapshot of the current job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := m.current
	snapshot.Clips = append([]domain.EnrichedClip(nil), m.current.Clips...)
	if m.current.Analysis != nil {
		analysis := *m.current.Analysis
		analysis.ViralClips = append([]domain.ClipCandidate(nil), m.current.Analysis.ViralClips...)
		analysis.SocialPosts = append([]string(nil), m.current.Analysis.SocialPosts...)
		snapshot.Analysis = &analysis
	}
	return snapshot
}

// IsRunning reports whether the current stage is an active one.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isRunning(m.current.Stage)
}

// checkToken verifies a mutation targets the current job.
func (m *Manager) checkToken(jobID string) error {
	if m.current.ID == "" {
		return fmt.Errorf("no active job")
	}
	if jobID != m.current.ID {
		return ErrStaleJob
	}
	return nil
}

// isRunning checks if a stage represents active pipeline execution.
func isRunning(stage domain.Stage) bool {
	switch stage {
	case domain.StageTranscribing, domain.StageAnalyzing, domain.StageClipping:
		return true
	default:
		return false
	}
}

// isValidTransition enforces the allowed stage machine edges. The
// analyzing -> complete edge covers analyses with zero candidates.
func isValidTransition(from, to domain.Stage) bool {
	switch from {
	case domain.StageIdle:
		return to == domain.StageTranscribing
	case domain.StageTranscribing:
		return to == domain.StageAnalyzing || to == domain.StageError
	case domain.StageAnalyzing:
		return to == domain.StageClipping || to == domain.StageComplete || to == domain.StageError
	case domain.StageClipping:
		return to == domain.StageComplete || to == domain.StageError
	case domain.StageComplete, domain.StageError:
		return to == domain.StageTranscribing || to == domain.StageIdle
	default:
		return false
	}
}
