package cli

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/apresai/pdfcast/internal/artifact"
	"github.com/apresai/pdfcast/internal/ingest"
	"github.com/apresai/pdfcast/internal/pipeline"
	"github.com/apresai/pdfcast/internal/script"
)

// stubBackend answers every call with canned artifacts.
type stubBackend struct {
	mu    sync.Mutex
	langs []script.Language
}

func (s *stubBackend) Upload(ctx context.Context, doc *ingest.Document) (artifact.UploadResult, error) {
	return artifact.UploadResult{Ref: "01J0-lecture.pdf", Preview: "Cells divide by mitosis.", TextLength: 900}, nil
}

func (s *stubBackend) GenerateScript(ctx context.Context, ref artifact.DocumentRef, lang script.Language) (*script.Script, error) {
	s.mu.Lock()
	s.langs = append(s.langs, lang)
	s.mu.Unlock()
	return &script.Script{
		Title: "Mitosis",
		Turns: []script.Turn{
			{Speaker: script.RoleTeacher, Text: "Let's talk about cell division."},
			{Speaker: script.RoleStudent, Text: "How long does it take?"},
		},
	}, nil
}

func (s *stubBackend) GenerateAudio(ctx context.Context, sc *script.Script, ref artifact.DocumentRef, lang script.Language) (artifact.AudioRef, error) {
	return "01J0-lecture_podcast.mp3", nil
}

func (s *stubBackend) Stream(ctx context.Context, ref artifact.AudioRef) (*artifact.Media, error) {
	return &artifact.Media{Name: "lecture_podcast.mp3", ContentType: "audio/mpeg", Body: io.NopCloser(strings.NewReader("ID3audio"))}, nil
}

func (s *stubBackend) Download(ctx context.Context, ref artifact.AudioRef) (*artifact.Media, error) {
	return s.Stream(ctx, ref)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testPDF() *ingest.Document {
	return &ingest.Document{Name: "lecture.pdf", ContentType: ingest.ContentTypePDF, Data: []byte("%PDF-1.7 test")}
}

func newStubController(b pipeline.Backend, lang *languageChoice) *pipeline.Controller {
	return pipeline.NewController(context.Background(), b, pipeline.Options{
		Language: lang.Get,
		Logger:   discardLogger(),
	})
}

func pipelineUpload() artifact.UploadResult {
	return artifact.UploadResult{Ref: "01J0-lecture.pdf", Preview: "Cells divide by mitosis.", TextLength: 900}
}
