package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/apresai/pdfcast/internal/artifact"
	"github.com/apresai/pdfcast/internal/backend"
	"github.com/apresai/pdfcast/internal/ingest"
	"github.com/apresai/pdfcast/internal/pipeline"
	"github.com/apresai/pdfcast/internal/script"
)

// multipartOverhead is allowed on top of the document size for form framing.
const multipartOverhead = 1 << 20

// Server exposes a pipeline.Backend over HTTP.
type Server struct {
	backend   pipeline.Backend
	log       *slog.Logger
	maxUpload int64
	handler   http.Handler
}

// New builds the router. maxUpload is the largest accepted document in bytes;
// zero means ingest.MaxDocumentSize.
func New(b pipeline.Backend, maxUpload int64, logger *slog.Logger) *Server {
	if maxUpload <= 0 {
		maxUpload = ingest.MaxDocumentSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{backend: b, log: logger.With("component", "server"), maxUpload: maxUpload}

	router := mux.NewRouter()
	router.Use(s.logRequests)
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/generate-script", s.handleGenerateScript).Methods(http.MethodPost)
	api.HandleFunc("/generate-audio", s.handleGenerateAudio).Methods(http.MethodPost)
	api.HandleFunc("/stream/{ref}", s.handleStream).Methods(http.MethodGet)
	api.HandleFunc("/download/{ref}", s.handleDownload).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	s.handler = otelhttp.NewHandler(router, "pdfcast.server")
	return s
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type uploadResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Filename   string `json:"filename"`
	TextLength int    `json:"text_length"`
	Preview    string `json:"preview"`
}

type scriptRequest struct {
	Filename string `json:"filename"`
	Language string `json:"language"`
}

type scriptResponse struct {
	Success bool           `json:"success"`
	Script  *script.Script `json:"script"`
}

type audioRequest struct {
	Script   *script.Script `json:"script"`
	Filename string         `json:"filename"`
	Language string         `json:"language"`
}

type audioResponse struct {
	Success   bool   `json:"success"`
	AudioFile string `json:"audio_file"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File is too large (max %s)", ingest.FormatSize(s.maxUpload)))
			return
		}
		writeError(w, http.StatusBadRequest, "No PDF file provided")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("pdf")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No PDF file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	doc := &ingest.Document{Name: header.Filename, ContentType: ingest.DetectContentType(data), Data: data}
	res, err := s.backend.Upload(r.Context(), doc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Success:    true,
		Message:    "PDF uploaded successfully",
		Filename:   res.Ref.String(),
		TextLength: res.TextLength,
		Preview:    res.Preview,
	})
}

func (s *Server) handleGenerateScript(w http.ResponseWriter, r *http.Request) {
	var req scriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	sc, err := s.backend.GenerateScript(r.Context(), artifact.DocumentRef(req.Filename), languageOrDefault(req.Language))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scriptResponse{Success: true, Script: sc})
}

func (s *Server) handleGenerateAudio(w http.ResponseWriter, r *http.Request) {
	var req audioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	ref, err := s.backend.GenerateAudio(r.Context(), req.Script, artifact.DocumentRef(req.Filename), languageOrDefault(req.Language))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, audioResponse{Success: true, AudioFile: ref.String()})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	m, err := s.backend.Stream(r.Context(), artifact.AudioRef(mux.Vars(r)["ref"]))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer m.Body.Close()
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": m.Name}))
	serveMedia(w, r, m)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	m, err := s.backend.Download(r.Context(), artifact.AudioRef(mux.Vars(r)["ref"]))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer m.Body.Close()
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": m.Name}))
	serveMedia(w, r, m)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// serveMedia supports range requests when the body can seek, so players can
// scrub through the episode.
func serveMedia(w http.ResponseWriter, r *http.Request, m *artifact.Media) {
	w.Header().Set("Content-Type", m.ContentType)
	if rs, ok := m.Body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, m.Name, time.Time{}, rs)
		return
	}
	if m.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(m.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	io.Copy(w, m.Body)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := backend.StatusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
	}
	msg, ok := artifact.UserMessage(err)
	if !ok || msg == "" {
		msg = err.Error()
	}
	writeError(w, status, msg)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.log.InfoContext(r.Context(), "Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration.Round(time.Millisecond),
		)
	})
}

func languageOrDefault(code string) script.Language {
	if code == "" {
		return script.DefaultLanguage
	}
	return script.Language(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
