package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"viral-clipper/internal/config"
	"viral-clipper/internal/domain"
)

const analysisPrompt = `You are a social media strategist for video content. Based on the transcript below, produce a response as STRICT JSON with exactly this structure and nothing else:

{
  "summary": "a concise written summary of the video",
  "viral_clips": [
    {"start": 10, "end": 40, "reason": "why this range works as a short clip"}
  ],
  "social_posts": ["ready-to-publish social media caption"]
}

Rules:
- "start" and "end" are seconds from the beginning of the video, start < end.
- Propose 2 to 5 clips of roughly 20 to 60 seconds each, ordered by start time.
- Write 2 to 3 social_posts captions matching the video's tone.
- Output raw JSON only, no markdown fences, no commentary.

Transcript:
---
%s
---`

// generateFunc issues one text generation call and returns raw model output.
type generateFunc func(ctx context.Context, credential, model, prompt string) (string, error)

// GeminiService implements the analysis contract against the Gemini API.
type GeminiService struct {
	generate generateFunc
}

// NewGeminiService constructs the production Gemini-backed service.
func NewGeminiService() *GeminiService {
	return &GeminiService{generate: generateContent}
}

// NewGeminiServiceForTests constructs a service with an injected backend call.
func NewGeminiServiceForTests(generate generateFunc) *GeminiService {
	return &GeminiService{generate: generate}
}

// Analyze sends the transcript for analysis and validates the response
// into the strict AnalysisResult shape. Malformed responses surface as
// *AnalysisError, never as untyped payloads.
func (s *GeminiService) Analyze(ctx context.Context, req Request) (domain.AnalysisResult, error) {
	if strings.TrimSpace(req.Credential) == "" {
		return domain.AnalysisResult{}, &AnalysisError{Message: "credential is required"}
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = config.DefaultAnalysisModel
	}

	raw, err := s.generate(ctx, req.Credential, model, fmt.Sprintf(analysisPrompt, req.Transcript))
	if err != nil {
		return domain.AnalysisResult{}, &AnalysisError{Message: "analysis request failed", Err: err}
	}

	result, err := parseAnalysisResponse(raw)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	return result, nil
}

// generateContent performs one Gemini text generation call.
func generateContent(ctx context.Context, credential, model, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  credential,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("create client: %w", err)
	}

	result, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from model")
	}

	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	return text.String(), nil
}

// clipPayload mirrors one raw candidate entry with presence tracking.
type clipPayload struct {
	Start  *float64 `json:"start"`
	End    *float64 `json:"end"`
	Reason string   `json:"reason"`
}

// responsePayload mirrors the raw model response with presence tracking.
type responsePayload struct {
	Summary     *string       `json:"summary"`
	ViralClips  *[]clipPayload `json:"viral_clips"`
	SocialPosts *[]string     `json:"social_posts"`
}

// parseAnalysisResponse validates raw model output into AnalysisResult.
func parseAnalysisResponse(raw string) (domain.AnalysisResult, error) {
	body, err := extractJSONObject(raw)
	if err != nil {
		return domain.AnalysisResult{}, &AnalysisError{Message: "response is not a JSON object", Err: err}
	}

	var payload responsePayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return domain.AnalysisResult{}, &AnalysisError{Message: "response is not valid JSON", Err: err}
	}

	if payload.Summary == nil || strings.TrimSpace(*payload.Summary) == "" {
		return domain.AnalysisResult{}, &AnalysisError{Message: "response is missing summary"}
	}
	if payload.ViralClips == nil {
		return domain.AnalysisResult{}, &AnalysisError{Message: "response is missing viral_clips"}
	}
	if payload.SocialPosts == nil {
		return domain.AnalysisResult{}, &AnalysisError{Message: "response is missing social_posts"}
	}

	clips := make([]domain.ClipCandidate, 0, len(*payload.ViralClips))
	for i, clip := range *payload.ViralClips {
		if clip.Start == nil || clip.End == nil {
			return domain.AnalysisResult{}, &AnalysisError{
				Message: fmt.Sprintf("viral_clips[%d] is missing start or end", i),
			}
		}
		if *clip.Start < 0 || *clip.Start >= *clip.End {
			return domain.AnalysisResult{}, &AnalysisError{
				Message: fmt.Sprintf("viral_clips[%d] has invalid range %v..%v", i, *clip.Start, *clip.End),
			}
		}
		clips = append(clips, domain.ClipCandidate{
			Start:  *clip.Start,
			End:    *clip.End,
			Reason: strings.TrimSpace(clip.Reason),
		})
	}

	return domain.AnalysisResult{
		Summary:     strings.TrimSpace(*payload.Summary),
		ViralClips:  clips,
		SocialPosts: *payload.SocialPosts,
	}, nil
}

// extractJSONObject strips markdown fences and surrounding prose that
// models occasionally emit around the JSON body.
func extractJSONObject(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object found in %d bytes of output", len(raw))
	}
	return trimmed[start : end+1], nil
}
