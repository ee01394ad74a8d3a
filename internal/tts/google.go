package tts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	texttospeechpb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GoogleProvider implements Provider using Google Cloud TTS (Chirp 3 HD).
type GoogleProvider struct {
	client *texttospeech.Client
	speed  float64
	pitch  float64
	log    *slog.Logger
}

// NewGoogleProvider dials Google Cloud TTS with application default
// credentials unless opts say otherwise.
func NewGoogleProvider(ctx context.Context, cfg ProviderConfig, logger *slog.Logger, opts ...option.ClientOption) (*GoogleProvider, error) {
	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create Google TTS client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleProvider{
		client: client,
		speed:  cfg.Speed,
		pitch:  cfg.Pitch,
		log:    logger.With("component", "tts", "provider", "google"),
	}, nil
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) Synthesize(ctx context.Context, text string, voice Voice) (AudioResult, error) {
	start := time.Now()
	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: voice.LanguageCode,
			Name:         voice.ID,
		},
		AudioConfig: p.audioConfig(),
	}

	var resp *texttospeechpb.SynthesizeSpeechResponse
	err := WithRetry(ctx, func() error {
		var callErr error
		resp, callErr = p.client.SynthesizeSpeech(ctx, req)
		return classify(callErr)
	})
	if err != nil {
		return AudioResult{}, fmt.Errorf("Google TTS synthesize: %w", err)
	}

	p.log.DebugContext(ctx, "Synthesized turn",
		"voice", voice.ID,
		"chars", len(text),
		"bytes", len(resp.AudioContent),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return AudioResult{Data: resp.AudioContent, Format: FormatMP3}, nil
}

func (p *GoogleProvider) audioConfig() *texttospeechpb.AudioConfig {
	cfg := &texttospeechpb.AudioConfig{
		AudioEncoding: texttospeechpb.AudioEncoding_MP3,
	}
	if p.speed != 0 {
		cfg.SpeakingRate = p.speed
	}
	if p.pitch != 0 {
		cfg.Pitch = p.pitch
	}
	return cfg
}

func (p *GoogleProvider) Close() error { return p.client.Close() }

// classify marks transient gRPC failures as retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal:
		return &RetryableError{StatusCode: int(st.Code()), Body: st.Message()}
	default:
		return err
	}
}
