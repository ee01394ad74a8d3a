package tts

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AudioFormat represents the audio encoding returned by a provider.
type AudioFormat string

const (
	FormatMP3 AudioFormat = "mp3"
	FormatWAV AudioFormat = "wav"
)

// Voice holds a provider-specific voice identifier.
type Voice struct {
	ID           string // Provider-specific voice identifier
	LanguageCode string // BCP-47 code the voice speaks, e.g. "en-US"
	Name         string // Human-readable label
}

// AudioResult is the output of a synthesis call.
type AudioResult struct {
	Data   []byte
	Format AudioFormat
}

// Provider synthesizes speech from a single line of dialogue.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text string, voice Voice) (AudioResult, error)
	Close() error
}

// ProviderConfig holds optional voice tuning shared by providers.
type ProviderConfig struct {
	Speed float64 // speaking rate, 0 keeps the provider default
	Pitch float64 // semitones, 0 keeps the provider default
}

// Retry constants shared by all providers.
const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 1 * time.Second
	defaultBackoffMulti   = 2
	defaultMaxBackoff     = 10 * time.Second
)

// RetryableError signals that the operation can be retried.
type RetryableError struct {
	StatusCode int
	Body       string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// WithRetry executes fn with exponential backoff on RetryableError.
func WithRetry(ctx context.Context, fn func() error) error {
	return withRetry(ctx, defaultInitialBackoff, fn)
}

func withRetry(ctx context.Context, backoff time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= defaultMaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var re *RetryableError
		if !errors.As(err, &re) {
			return err
		}
		lastErr = err

		if attempt < defaultMaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= time.Duration(defaultBackoffMulti)
			if backoff > defaultMaxBackoff {
				backoff = defaultMaxBackoff
			}
		}
	}

	return lastErr
}
