package domain

// Stage tracks the pipeline position of the single active job.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageTranscribing Stage = "transcribing"
	StageAnalyzing    Stage = "analyzing"
	StageClipping     Stage = "clipping"
	StageComplete     Stage = "complete"
	StageError        Stage = "error"
)

// ClipCandidate is one highlight range proposed by the analysis service.
// Times are seconds from the start of the source media.
type ClipCandidate struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Reason string  `json:"reason"`
}

// AnalysisResult is the validated response shape of the analysis service.
type AnalysisResult struct {
	Summary     string          `json:"summary"`
	ViralClips  []ClipCandidate `json:"viral_clips"`
	SocialPosts []string        `json:"social_posts"`
}

// EnrichedClip is a candidate that has been cut from the source media.
// OutputPath is the playable handle for the trimmed sub-range.
type EnrichedClip struct {
	ClipCandidate
	OutputPath string `json:"outputPath"`
}

// Job is one end-to-end pipeline run. It is owned exclusively by the
// jobs manager for its lifetime; callers only ever see snapshots.
type Job struct {
	ID            string          `json:"id"`
	InputPath     string          `json:"inputPath"`
	Stage         Stage           `json:"stage"`
	StatusMessage string          `json:"statusMessage"`
	Transcript    string          `json:"transcript,omitempty"`
	Analysis      *AnalysisResult `json:"analysis,omitempty"`
	Clips         []EnrichedClip  `json:"clips"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	ModelPath     string `json:"modelPath"`
	OutputDir     string `json:"outputDir"`
	Language      string `json:"language"`
	AnalysisModel string `json:"analysisModel"`
}
