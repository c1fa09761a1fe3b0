package ai

import (
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
	"github.com/lernbegleiter/lernwelt-cli/internal/core/ports/driven"
	"github.com/lernbegleiter/lernwelt-cli/internal/logger"
)

var _ driven.SpeechService = (*Speech)(nil)

// DefaultVoice reads the German explanations.
const DefaultVoice = openai.VoiceNova

const speechRequestsPerMinute = 30

// Speech synthesizes spoken explanations via the OpenAI TTS API. The PCM
// response format matches the domain sample rate (24 kHz mono, 16 bit), so
// samples only need normalization.
type Speech struct {
	client  *openai.Client
	voice   openai.SpeechVoice
	limiter *rate.Limiter
}

// NewSpeech creates the speech adapter. baseURL and voice may be empty for
// the defaults.
func NewSpeech(apiKey, baseURL, voice string) (*Speech, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	v := DefaultVoice
	if voice != "" {
		v = openai.SpeechVoice(voice)
	}
	return &Speech{
		client:  newClient(apiKey, baseURL),
		voice:   v,
		limiter: rate.NewLimiter(rate.Limit(speechRequestsPerMinute)/60.0, 1),
	}, nil
}

// Synthesize converts text to a normalized mono clip.
func (s *Speech) Synthesize(ctx context.Context, text string) (*domain.AudioClip, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("synthesizing speech: empty text: %w", domain.ErrInvalidInput)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("synthesizing speech: %w", domain.ErrRateLimited)
		}
		return nil, fmt.Errorf("synthesizing speech: %w: %v", domain.ErrSynthesisFailed, err)
	}
	defer resp.Close()

	pcm, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("synthesizing speech: reading response: %w: %v", domain.ErrSynthesisFailed, err)
	}
	if len(pcm) < 2 {
		return nil, fmt.Errorf("synthesizing speech: empty audio: %w", domain.ErrSynthesisFailed)
	}

	clip := domain.ClipFromPCM16(pcm)
	logger.Debug("synthesized %.1fs of speech for %d characters", clip.Duration(), len(text))
	return clip, nil
}

// Close releases provider resources.
func (s *Speech) Close() {}
