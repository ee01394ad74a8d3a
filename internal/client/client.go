// Package client talks to a pdfcast server and satisfies pipeline.Backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/apresai/pdfcast/internal/artifact"
	"github.com/apresai/pdfcast/internal/ingest"
	"github.com/apresai/pdfcast/internal/script"
)

const maxErrorBody = 64 << 10

// Client calls the pdfcast HTTP API. It imposes no timeout of its own;
// callers bound requests through their context.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the traced default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "client")
	return c, nil
}

type uploadResponse struct {
	Success    bool   `json:"success"`
	Filename   string `json:"filename"`
	TextLength int    `json:"text_length"`
	Preview    string `json:"preview"`
	Error      string `json:"error"`
}

type scriptResponse struct {
	Success bool           `json:"success"`
	Script  *script.Script `json:"script"`
	Error   string         `json:"error"`
}

type audioResponse struct {
	Success   bool   `json:"success"`
	AudioFile string `json:"audio_file"`
	Error     string `json:"error"`
}

// Upload sends doc as the "pdf" field of a multipart form.
func (c *Client) Upload(ctx context.Context, doc *ingest.Document) (artifact.UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{"name": "pdf", "filename": doc.Name}))
	h.Set("Content-Type", doc.ContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return artifact.UploadResult{}, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(doc.Data); err != nil {
		return artifact.UploadResult{}, fmt.Errorf("build upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return artifact.UploadResult{}, fmt.Errorf("build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &buf)
	if err != nil {
		return artifact.UploadResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out uploadResponse
	if err := c.do(req, &out); err != nil {
		return artifact.UploadResult{}, err
	}
	if !out.Success || out.Filename == "" {
		return artifact.UploadResult{}, &artifact.RemoteError{StatusCode: http.StatusOK, Message: out.Error}
	}
	return artifact.UploadResult{Ref: artifact.DocumentRef(out.Filename), Preview: out.Preview, TextLength: out.TextLength}, nil
}

// GenerateScript asks the server to write a script for ref in lang.
func (c *Client) GenerateScript(ctx context.Context, ref artifact.DocumentRef, lang script.Language) (*script.Script, error) {
	body := map[string]string{"filename": ref.String(), "language": string(lang)}
	var out scriptResponse
	if err := c.postJSON(ctx, "/api/generate-script", body, &out); err != nil {
		return nil, err
	}
	if !out.Success || out.Script == nil {
		return nil, &artifact.RemoteError{StatusCode: http.StatusOK, Message: out.Error}
	}
	return out.Script, nil
}

// GenerateAudio asks the server to render s.
func (c *Client) GenerateAudio(ctx context.Context, s *script.Script, ref artifact.DocumentRef, lang script.Language) (artifact.AudioRef, error) {
	body := struct {
		Script   *script.Script `json:"script"`
		Filename string         `json:"filename"`
		Language string         `json:"language"`
	}{s, ref.String(), string(lang)}
	var out audioResponse
	if err := c.postJSON(ctx, "/api/generate-audio", body, &out); err != nil {
		return "", err
	}
	if !out.Success || out.AudioFile == "" {
		return "", &artifact.RemoteError{StatusCode: http.StatusOK, Message: out.Error}
	}
	return artifact.AudioRef(out.AudioFile), nil
}

// Stream opens the audio for playback. The caller closes Body.
func (c *Client) Stream(ctx context.Context, ref artifact.AudioRef) (*artifact.Media, error) {
	return c.media(ctx, "/api/stream/", ref)
}

// Download opens the audio with the server's suggested filename.
func (c *Client) Download(ctx context.Context, ref artifact.AudioRef) (*artifact.Media, error) {
	return c.media(ctx, "/api/download/", ref)
}

func (c *Client) media(ctx context.Context, prefix string, ref artifact.AudioRef) (*artifact.Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+prefix+url.PathEscape(ref.String()), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, remoteError(resp)
	}

	name := ref.String()
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return &artifact.Media{
		Name:        name,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
		Body:        resp.Body,
	}, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do sends req and decodes a 200 JSON answer into out. Any other status, or
// an undecodable body, becomes a *artifact.RemoteError.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rerr := remoteError(resp)
		c.log.WarnContext(req.Context(), "Server returned error", "path", req.URL.Path, "status", resp.StatusCode, "error", rerr.Message)
		return rerr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.log.WarnContext(req.Context(), "Malformed server response", "path", req.URL.Path, "error", err)
		return &artifact.RemoteError{StatusCode: resp.StatusCode}
	}
	return nil
}

func remoteError(resp *http.Response) *artifact.RemoteError {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = json.Unmarshal(data, &body)
	return &artifact.RemoteError{StatusCode: resp.StatusCode, Message: body.Error}
}
