package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/pdfcast/internal/script"
)

var tracer = otel.Tracer("github.com/apresai/pdfcast/internal/mcpserver")

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func languageCodes() []string {
	infos := script.Languages()
	out := make([]string, len(infos))
	for i, l := range infos {
		out[i] = string(l.Code)
	}
	return out
}

// ToolDefs returns the tools in registration order.
func ToolDefs() []mcp.Tool {
	idParam := mcp.WithString("podcast_id",
		mcp.Required(),
		mcp.Description("Podcast ID returned by generate_podcast"),
	)
	return []mcp.Tool{
		mcp.NewTool("generate_podcast",
			mcp.WithDescription("Turn a PDF into a teacher and student podcast. Runs in the background; poll get_podcast with the returned podcast_id."),
			mcp.WithString("path",
				mcp.Required(),
				mcp.Description("Path of the PDF on the server's filesystem"),
			),
			mcp.WithString("language",
				mcp.Description("Podcast language"),
				mcp.Enum(languageCodes()...),
				mcp.DefaultString(string(script.DefaultLanguage)),
			),
		),
		mcp.NewTool("get_podcast",
			mcp.WithDescription("Status and details of one podcast, including its audio reference once complete."),
			idParam,
		),
		mcp.NewTool("list_podcasts",
			mcp.WithDescription("List podcasts, newest first."),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of results"),
				mcp.DefaultNumber(defaultListLimit),
				mcp.Min(1),
				mcp.Max(maxListLimit),
			),
			mcp.WithString("cursor",
				mcp.Description("next_cursor from a previous call"),
			),
		),
		mcp.NewTool("cancel_podcast",
			mcp.WithDescription("Cancel a podcast that is still being generated."),
			idParam,
		),
	}
}

// podcastView is the JSON shape returned for one job.
type podcastView struct {
	PodcastID       string    `json:"podcast_id"`
	Source          string    `json:"source"`
	Status          JobStatus `json:"status"`
	CreatedAt       string    `json:"created_at"`
	Title           string    `json:"title,omitempty"`
	AudioRef        string    `json:"audio_ref,omitempty"`
	DownloadPath    string    `json:"download_path,omitempty"`
	Language        string    `json:"language,omitempty"`
	ProgressPercent *float64  `json:"progress_percent,omitempty"`
	StageMessage    string    `json:"stage_message,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	Turns           int       `json:"turns,omitempty"`
	DocumentRef     string    `json:"document_ref,omitempty"`
	Error           string    `json:"error,omitempty"`
}

func listView(item *PodcastItem) podcastView {
	v := podcastView{
		PodcastID: item.PodcastID,
		Source:    item.SourceName,
		Status:    JobStatus(item.Status),
		CreatedAt: item.CreatedAt,
		Title:     item.Title,
		AudioRef:  item.AudioRef,
	}
	if item.AudioRef != "" {
		v.DownloadPath = "/api/download/" + item.AudioRef
	}
	return v
}

func detailView(item *PodcastItem) podcastView {
	v := listView(item)
	pct := item.ProgressPercent
	v.ProgressPercent = &pct
	v.Language = item.Language
	v.StageMessage = item.StageMessage
	v.Summary = item.Summary
	v.Turns = item.Turns
	v.DocumentRef = item.DocumentRef
	v.Error = item.ErrorMessage
	return v
}

// Handlers serves the tool calls.
type Handlers struct {
	tasks *TaskManager
	store JobStore
	log   *slog.Logger
}

func NewHandlers(tasks *TaskManager, store JobStore, logger *slog.Logger) *Handlers {
	return &Handlers{tasks: tasks, store: store, log: logger}
}

func toolError(span trace.Span, err error, format string, args ...any) *mcp.CallToolResult {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		span.RecordError(err)
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	span.SetStatus(codes.Error, msg)
	return mcp.NewToolResultError(msg)
}

// HandleGeneratePodcast validates the input and starts a background task.
func (h *Handlers) HandleGeneratePodcast(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.generate_podcast")
	defer span.End()

	path, err := req.RequireString("path")
	if err != nil || path == "" {
		return toolError(span, nil, "path is required"), nil
	}
	lang := script.ParseLanguage(req.GetString("language", string(script.DefaultLanguage)))
	span.SetAttributes(
		attribute.String("path", path),
		attribute.String("language", string(lang)),
	)

	id, err := h.tasks.StartTask(ctx, GenerateRequest{Path: path, Language: lang})
	if err != nil {
		return toolError(span, err, "failed to start task"), nil
	}
	span.SetAttributes(attribute.String("podcast_id", id))
	h.log.InfoContext(ctx, "Podcast generation started", "podcast_id", id, "language", lang)

	return jsonResult(struct {
		PodcastID string    `json:"podcast_id"`
		Status    JobStatus `json:"status"`
		Message   string    `json:"message"`
	}{id, JobStatusSubmitted, "Generation started. Poll get_podcast with this podcast_id."})
}

// HandleGetPodcast returns one job.
func (h *Handlers) HandleGetPodcast(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.get_podcast")
	defer span.End()

	id, err := req.RequireString("podcast_id")
	if err != nil || id == "" {
		return toolError(span, nil, "podcast_id is required"), nil
	}
	span.SetAttributes(attribute.String("podcast_id", id))

	item, err := h.store.GetPodcast(ctx, id)
	if err != nil {
		return toolError(span, err, "failed to get podcast"), nil
	}
	if item == nil {
		return toolError(span, nil, "podcast %s not found", id), nil
	}
	return jsonResult(detailView(item))
}

// HandleListPodcasts returns one page of jobs.
func (h *Handlers) HandleListPodcasts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.list_podcasts")
	defer span.End()

	limit := req.GetInt("limit", defaultListLimit)
	limit = max(1, min(limit, maxListLimit))
	cursor := req.GetString("cursor", "")
	span.SetAttributes(attribute.Int("limit", limit), attribute.String("cursor", cursor))

	items, next, err := h.store.ListPodcasts(ctx, limit, cursor)
	if err != nil {
		return toolError(span, err, "failed to list podcasts"), nil
	}
	span.SetAttributes(attribute.Int("result_count", len(items)))

	views := make([]podcastView, len(items))
	for i := range items {
		views[i] = listView(&items[i])
	}
	return jsonResult(struct {
		Podcasts   []podcastView `json:"podcasts"`
		Count      int           `json:"count"`
		NextCursor string        `json:"next_cursor,omitempty"`
	}{views, len(views), next})
}

// HandleCancelPodcast resets a running task's pipeline.
func (h *Handlers) HandleCancelPodcast(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.cancel_podcast")
	defer span.End()

	id, err := req.RequireString("podcast_id")
	if err != nil || id == "" {
		return toolError(span, nil, "podcast_id is required"), nil
	}
	span.SetAttributes(attribute.String("podcast_id", id))

	if !h.tasks.CancelTask(id) {
		return toolError(span, nil, "podcast %s is not running", id), nil
	}
	h.log.InfoContext(ctx, "Podcast generation cancelled", "podcast_id", id)
	return jsonResult(struct {
		PodcastID string    `json:"podcast_id"`
		Status    JobStatus `json:"status"`
	}{id, JobStatusCancelled})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
