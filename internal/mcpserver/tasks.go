package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/pdfcast/internal/ingest"
	"github.com/apresai/pdfcast/internal/observability"
	"github.com/apresai/pdfcast/internal/pipeline"
	"github.com/apresai/pdfcast/internal/progress"
	"github.com/apresai/pdfcast/internal/script"
)

// progressInterval throttles store writes between stage transitions.
const progressInterval = 2 * time.Second

// GenerateRequest holds parameters for a podcast generation task.
type GenerateRequest struct {
	Path     string
	Language script.Language
}

// task is one running pipeline.
type task struct {
	ctrl      *pipeline.Controller
	cancelled atomic.Bool
}

// TaskManager runs podcast generations in the background, one pipeline
// controller per task.
type TaskManager struct {
	store   JobStore
	backend pipeline.Backend
	log     *slog.Logger
	baseCtx context.Context // cancelled on shutdown

	mu       sync.Mutex
	tasks    map[string]*task
	maxTasks int
	wg       sync.WaitGroup
}

// NewTaskManager creates a task manager.
// baseCtx should be cancelled on SIGTERM so pipeline goroutines can clean up.
func NewTaskManager(baseCtx context.Context, store JobStore, b pipeline.Backend, maxTasks int, logger *slog.Logger) *TaskManager {
	if maxTasks <= 0 {
		maxTasks = 5
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TaskManager{
		store:    store,
		backend:  b,
		log:      logger.With("component", "mcp_tasks"),
		baseCtx:  baseCtx,
		tasks:    make(map[string]*task),
		maxTasks: maxTasks,
	}
}

// StartTask validates the document, records the job and starts the pipeline
// in a goroutine. Returns the podcast ID immediately.
func (tm *TaskManager) StartTask(ctx context.Context, req GenerateRequest) (string, error) {
	doc, err := ingest.Open(req.Path)
	if err != nil {
		return "", err
	}
	if err := ingest.Validate(doc); err != nil {
		return "", err
	}
	lang := script.ParseLanguage(string(req.Language))

	id, err := NewPodcastID()
	if err != nil {
		return "", err
	}

	// The task outlives the tool call, so it runs under baseCtx and only
	// carries the caller's trace.
	taskCtx := observability.DetachTraceContextFrom(ctx, tm.baseCtx)
	t := &task{ctrl: pipeline.NewController(taskCtx, tm.backend, pipeline.Options{
		Language:   func() script.Language { return lang },
		OnProgress: tm.progressRecorder(taskCtx, id),
		Logger:     tm.log,
	})}

	tm.mu.Lock()
	if len(tm.tasks) >= tm.maxTasks {
		tm.mu.Unlock()
		return "", fmt.Errorf("max concurrent tasks reached (%d)", tm.maxTasks)
	}
	tm.tasks[id] = t
	tm.mu.Unlock()

	if err := tm.store.CreateJob(ctx, id, doc.Name, string(lang)); err != nil {
		tm.forget(id)
		return "", fmt.Errorf("create job: %w", err)
	}

	tm.wg.Add(1)
	go tm.runPipeline(taskCtx, id, t, doc)
	return id, nil
}

// CancelTask resets the task's pipeline. It reports whether the task was
// running.
func (tm *TaskManager) CancelTask(id string) bool {
	tm.mu.Lock()
	t, ok := tm.tasks[id]
	if ok {
		t.cancelled.Store(true)
	}
	tm.mu.Unlock()
	if !ok {
		return false
	}
	t.ctrl.Reset()
	return true
}

// Wait blocks until every started task has finished.
func (tm *TaskManager) Wait() {
	tm.wg.Wait()
}

func (tm *TaskManager) forget(id string) {
	tm.mu.Lock()
	delete(tm.tasks, id)
	tm.mu.Unlock()
}

func (tm *TaskManager) runPipeline(ctx context.Context, id string, t *task, doc *ingest.Document) {
	defer tm.wg.Done()
	defer tm.forget(id)

	ctx, span := tracer.Start(ctx, "mcp.task",
		trace.WithAttributes(
			attribute.String("podcast_id", id),
			attribute.String("session_id", t.ctrl.SessionID()),
		),
	)
	defer span.End()

	log := tm.log.With("podcast_id", id)
	start := time.Now()
	log.InfoContext(ctx, "Pipeline starting", "source", doc.Name)

	err := runStages(ctx, t.ctrl, doc)
	// Once forgotten the task cannot be cancelled, so the flag is final.
	tm.forget(id)
	final, ok := t.ctrl.State().(pipeline.AudioState)
	if err == nil && (!ok || t.cancelled.Load()) {
		// Cancelled after the last stage committed.
		err = pipeline.ErrSuperseded
	}
	if err != nil {
		status, msg := JobStatusFailed, err.Error()
		var serr *pipeline.StageError
		switch {
		case t.cancelled.Load():
			status, msg = JobStatusCancelled, "cancelled"
		case ctx.Err() != nil:
			msg = "server shutdown during processing"
		case errors.As(err, &serr):
			msg = serr.Message
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		log.WarnContext(ctx, "Pipeline ended without audio", "status", status, "error", err, "elapsed", time.Since(start).Round(time.Second))

		// The task context may be the reason we stopped.
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if ferr := tm.store.FailJob(failCtx, id, status, msg); ferr != nil {
			log.ErrorContext(ctx, "Fail job failed", "error", ferr)
		}
		return
	}

	snap := pipeline.Describe(final)
	res := JobResult{
		Title:       snap.Script.DisplayTitle(),
		Summary:     snap.Script.Summary,
		Turns:       len(snap.Script.Turns),
		DocumentRef: snap.DocumentRef.String(),
		AudioRef:    snap.Audio.String(),
	}
	if err := tm.store.CompleteJob(ctx, id, res); err != nil {
		log.ErrorContext(ctx, "Complete job failed", "error", err)
	}
	span.SetAttributes(attribute.String("title", res.Title), attribute.String("audio_ref", res.AudioRef))
	span.SetStatus(codes.Ok, "complete")
	log.InfoContext(ctx, "Pipeline complete", "title", res.Title, "audio_ref", res.AudioRef, "elapsed", time.Since(start).Round(time.Second))
}

func runStages(ctx context.Context, ctrl *pipeline.Controller, doc *ingest.Document) error {
	if err := ctrl.SelectDocument(doc); err != nil {
		return err
	}
	for _, stage := range []func(context.Context) error{ctrl.Upload, ctrl.GenerateScript, ctrl.GenerateAudio} {
		if err := stage(ctx); err != nil {
			return err
		}
	}
	return nil
}

// progressRecorder writes progress to the store, at most once per
// progressInterval except on stage transitions and completion.
func (tm *TaskManager) progressRecorder(ctx context.Context, id string) progress.Callback {
	var (
		mu        sync.Mutex
		lastWrite time.Time
		lastStage progress.Stage
	)
	return func(evt progress.Event) {
		if !evt.Active {
			return
		}
		mu.Lock()
		now := time.Now()
		if evt.Stage == lastStage && evt.Percent < progress.Done && now.Sub(lastWrite) < progressInterval {
			mu.Unlock()
			return
		}
		lastWrite, lastStage = now, evt.Stage
		mu.Unlock()

		if err := tm.store.UpdateProgress(ctx, id, mapStage(evt.Stage), evt.Percent, evt.Title); err != nil {
			tm.log.WarnContext(ctx, "Update progress failed", "podcast_id", id, "error", err)
		}
	}
}

// mapStage maps a pipeline progress stage to a job status.
func mapStage(stage progress.Stage) JobStatus {
	switch stage {
	case progress.StageUpload:
		return JobStatusUploading
	case progress.StageScript:
		return JobStatusScripting
	case progress.StageAudio:
		return JobStatusSynthesizing
	default:
		return JobStatusSubmitted
	}
}
