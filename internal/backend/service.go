package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/pdfcast/internal/artifact"
	"github.com/apresai/pdfcast/internal/assembly"
	"github.com/apresai/pdfcast/internal/ingest"
	"github.com/apresai/pdfcast/internal/script"
	"github.com/apresai/pdfcast/internal/tts"
)

var tracer = otel.Tracer("github.com/apresai/pdfcast/internal/backend")

const contentTypeMP3 = "audio/mpeg"

// Service implements the document, script and audio operations on top of a
// Store. It satisfies pipeline.Backend directly for in-process use and is
// what the HTTP server exposes.
type Service struct {
	store     Store
	generator script.Generator
	speech    tts.Provider
	assembler assembly.Assembler
	extract   func([]byte) (string, error)
	maxUpload int64
	tmpDir    string
	log       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithExtractor replaces PDF text extraction.
func WithExtractor(fn func([]byte) (string, error)) Option {
	return func(s *Service) { s.extract = fn }
}

// WithMaxUpload caps accepted document size in bytes.
func WithMaxUpload(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithTempDir sets where per-turn audio is staged.
func WithTempDir(dir string) Option {
	return func(s *Service) { s.tmpDir = dir }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService wires a Service. generator and speech may be nil, in which case
// the matching operation fails with a configuration error.
func NewService(store Store, generator script.Generator, speech tts.Provider, assembler assembly.Assembler, opts ...Option) *Service {
	s := &Service{
		store:     store,
		generator: generator,
		speech:    speech,
		assembler: assembler,
		extract:   ingest.ExtractText,
		maxUpload: ingest.MaxDocumentSize,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "backend")
	return s
}

// Upload stores doc and checks that it has enough text to script.
func (s *Service) Upload(ctx context.Context, doc *ingest.Document) (res artifact.UploadResult, err error) {
	ctx, span := tracer.Start(ctx, "backend.upload")
	defer func() { endSpan(span, err) }()

	if doc == nil {
		return res, badRequest("No PDF file provided")
	}
	if doc.Name == "" {
		return res, badRequest("No file selected")
	}
	if !strings.EqualFold(filepath.Ext(doc.Name), ".pdf") {
		return res, badRequest("File must be a PDF")
	}
	if doc.Size() > s.maxUpload {
		return res, badRequest(fmt.Sprintf("File is too large (max %s)", ingest.FormatSize(s.maxUpload)))
	}

	ref, err := NewDocumentRef(doc.Name)
	if err != nil {
		return res, internal("Upload failed", err)
	}
	span.SetAttributes(attribute.String("document_ref", ref.String()), attribute.Int64("size", doc.Size()))

	if err := s.store.Put(ctx, uploadKey(ref), bytes.NewReader(doc.Data), doc.Size(), ingest.ContentTypePDF); err != nil {
		return res, internal("Upload failed", err)
	}

	text, err := s.extract(doc.Data)
	if err != nil {
		return res, internal("Error extracting PDF text", err)
	}
	n := len([]rune(text))
	if n < ingest.MinTextLength {
		return res, badRequest("Could not extract sufficient text from PDF")
	}

	s.log.InfoContext(ctx, "Document uploaded", "ref", ref, "size", doc.Size(), "text_length", n)
	return artifact.UploadResult{Ref: ref, Preview: ingest.Preview(text), TextLength: n}, nil
}

// GenerateScript turns a stored document into a conversation in lang.
func (s *Service) GenerateScript(ctx context.Context, ref artifact.DocumentRef, lang script.Language) (sc *script.Script, err error) {
	ctx, span := tracer.Start(ctx, "backend.generate_script",
		trace.WithAttributes(attribute.String("document_ref", ref.String()), attribute.String("language", string(lang))),
	)
	defer func() { endSpan(span, err) }()

	if ref == "" {
		return nil, badRequest("No filename provided")
	}
	if !ValidRef(ref.String()) {
		return nil, notFound("File not found")
	}
	data, err := s.read(ctx, uploadKey(ref))
	if errors.Is(err, ErrNotFound) {
		return nil, notFound("File not found")
	}
	if err != nil {
		return nil, internal("Error reading document", err)
	}
	if s.generator == nil {
		return nil, internal("Script generation is not configured", errors.New("no API key for the script model"))
	}

	text, err := s.extract(data)
	if err != nil {
		return nil, internal("Error extracting PDF text", err)
	}

	lang = script.ParseLanguage(string(lang))
	start := time.Now()
	sc, err = s.generator.Generate(ctx, ingest.Truncate(text, ingest.MaxPromptChars), lang)
	if err != nil {
		return nil, internal("Error generating script", err)
	}
	if len(sc.Turns) == 0 {
		return nil, internal("Error generating script", errors.New("script has no conversation"))
	}

	s.log.InfoContext(ctx, "Script generated",
		"ref", ref,
		"language", lang,
		"turns", len(sc.Turns),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return sc, nil
}

// GenerateAudio synthesizes every turn and assembles one MP3 episode. A turn
// that fails to synthesize is logged and left out.
func (s *Service) GenerateAudio(ctx context.Context, sc *script.Script, ref artifact.DocumentRef, lang script.Language) (out artifact.AudioRef, err error) {
	ctx, span := tracer.Start(ctx, "backend.generate_audio",
		trace.WithAttributes(attribute.String("document_ref", ref.String()), attribute.String("language", string(lang))),
	)
	defer func() { endSpan(span, err) }()

	if sc == nil {
		return "", badRequest("No script provided")
	}
	if len(sc.Turns) == 0 {
		return "", internal("No conversation found in script", nil)
	}
	if s.speech == nil || s.assembler == nil {
		return "", internal("Audio generation is not configured", errors.New("no speech provider"))
	}

	audioRef, err := AudioRefFor(ref)
	if err != nil {
		return "", internal("Audio generation failed", err)
	}

	tmpDir, err := os.MkdirTemp(s.tmpDir, "pdfcast-audio-*")
	if err != nil {
		return "", internal("Audio generation failed", err)
	}
	defer os.RemoveAll(tmpDir)

	segments, err := s.synthesize(ctx, sc, script.ParseLanguage(string(lang)), tmpDir)
	if err != nil {
		return "", err
	}

	mp3Path := filepath.Join(tmpDir, "episode.mp3")
	if err := s.assembler.Assemble(ctx, segments, tmpDir, mp3Path); err != nil {
		return "", internal("Error assembling audio", err)
	}

	f, err := os.Open(mp3Path)
	if err != nil {
		return "", internal("Error assembling audio", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", internal("Error assembling audio", err)
	}
	if err := s.store.Put(ctx, audioKey(audioRef), f, info.Size(), contentTypeMP3); err != nil {
		return "", internal("Error saving audio", err)
	}

	span.SetAttributes(attribute.String("audio_ref", audioRef.String()), attribute.Int("segments", len(segments)))
	s.log.InfoContext(ctx, "Audio generated", "ref", audioRef, "segments", len(segments), "size", info.Size())
	return audioRef, nil
}

func (s *Service) synthesize(ctx context.Context, sc *script.Script, lang script.Language, dir string) ([]string, error) {
	voices := tts.VoicesFor(lang)
	var segments []string
	for i, turn := range sc.Turns {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		voice := voices.For(turn.Speaker)
		res, err := s.speech.Synthesize(ctx, turn.Text, voice)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.WarnContext(ctx, "Skipping turn that failed to synthesize", "turn", i, "speaker", turn.Speaker, "error", err)
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("turn_%03d.%s", i, res.Format))
		if err := os.WriteFile(path, res.Data, 0o644); err != nil {
			return nil, internal("Audio generation failed", err)
		}
		segments = append(segments, path)
	}
	if len(segments) == 0 {
		return nil, internal("Audio generation failed", errors.New("no turn could be synthesized"))
	}
	return segments, nil
}

// Stream opens rendered audio for playback.
func (s *Service) Stream(ctx context.Context, ref artifact.AudioRef) (*artifact.Media, error) {
	return s.media(ctx, ref)
}

// Download opens rendered audio with a filename suitable for saving.
func (s *Service) Download(ctx context.Context, ref artifact.AudioRef) (*artifact.Media, error) {
	m, err := s.media(ctx, ref)
	if err != nil {
		return nil, err
	}
	m.Name = DisplayName(ref.String())
	return m, nil
}

func (s *Service) media(ctx context.Context, ref artifact.AudioRef) (*artifact.Media, error) {
	if !ValidRef(ref.String()) {
		return nil, notFound("Audio not found")
	}
	body, size, err := s.store.Get(ctx, audioKey(ref))
	if errors.Is(err, ErrNotFound) {
		return nil, notFound("Audio not found")
	}
	if err != nil {
		return nil, internal("Error reading audio", err)
	}
	return &artifact.Media{Name: ref.String(), ContentType: contentTypeMP3, Size: size, Body: body}, nil
}

func (s *Service) read(ctx context.Context, key string) ([]byte, error) {
	body, _, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
