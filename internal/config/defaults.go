package config

import (
	"os"
	"path/filepath"

	"viral-clipper/internal/domain"
)

// DefaultAnalysisModel is used when no analysis model is configured.
const DefaultAnalysisModel = "gemini-2.5-flash"

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		ModelPath:     filepath.Join(homeDir, ".viral-clipper", "models"),
		OutputDir:     filepath.Join(homeDir, "Documents", "ViralClips"),
		Language:      "auto",
		AnalysisModel: DefaultAnalysisModel,
	}
}
