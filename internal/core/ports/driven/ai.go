package driven

import (
	"context"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
)

// AnalysisService extracts structured task content from a textbook page photo.
// The returned task carries every field except ID, Timestamp and
// FileFingerprint, which the importer stamps.
type AnalysisService interface {
	// AnalyzeTaskImage submits image bytes and returns the extracted task,
	// or an error wrapping domain.ErrAnalysisFailed with the provider's
	// message. Quota exhaustion is reported as domain.ErrRateLimited; the
	// caller applies bounded backoff before re-invoking.
	AnalyzeTaskImage(ctx context.Context, image []byte, pageNumber int, mimeType string) (*domain.Task, error)

	// Close releases provider resources.
	Close()
}

// SpeechService synthesizes spoken explanations as raw mono PCM at the fixed
// domain sample rate.
type SpeechService interface {
	// Synthesize converts text to speech, or returns an error wrapping
	// domain.ErrSynthesisFailed.
	Synthesize(ctx context.Context, text string) (*domain.AudioClip, error)

	// Close releases provider resources.
	Close()
}
