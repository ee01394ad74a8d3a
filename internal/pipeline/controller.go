package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/pdfcast/internal/artifact"
	"github.com/apresai/pdfcast/internal/ingest"
	"github.com/apresai/pdfcast/internal/observability"
	"github.com/apresai/pdfcast/internal/progress"
	"github.com/apresai/pdfcast/internal/script"
)

var tracer = otel.Tracer("github.com/apresai/pdfcast/internal/pipeline")

// Backend is the set of remote operations the controller drives.
type Backend interface {
	Upload(ctx context.Context, doc *ingest.Document) (artifact.UploadResult, error)
	GenerateScript(ctx context.Context, ref artifact.DocumentRef, lang script.Language) (*script.Script, error)
	GenerateAudio(ctx context.Context, s *script.Script, ref artifact.DocumentRef, lang script.Language) (artifact.AudioRef, error)
	Stream(ctx context.Context, ref artifact.AudioRef) (*artifact.Media, error)
	Download(ctx context.Context, ref artifact.AudioRef) (*artifact.Media, error)
}

// NoticeLevel classifies a user-facing notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a short message for the user, shown as a toast by the UI.
type Notice struct {
	Level   NoticeLevel
	Message string
}

// Options configures a Controller. Every field is optional.
type Options struct {
	// Language is read at the moment script or audio generation is issued.
	Language   func() script.Language
	OnProgress progress.Callback
	OnNotice   func(Notice)
	// OnChange receives the new state after every commit or reset.
	OnChange func(State)
	Logger   *slog.Logger

	estimatorOptions []progress.EstimatorOption
}

// operation describes one remote stage as the user sees it.
type operation struct {
	stage    progress.Stage
	title    string
	message  string
	profile  progress.Profile
	fixed    float64 // when set, shown instead of ticking
	fallback string
	success  string
}

var (
	opUpload = operation{
		stage:    progress.StageUpload,
		title:    "Uploading PDF...",
		message:  "Analyzing your document",
		fixed:    progress.UploadPercent,
		fallback: "Upload failed",
		success:  "PDF uploaded successfully!",
	}
	opScript = operation{
		stage:    progress.StageScript,
		title:    "Creating Your Podcast Script...",
		message:  "AI is transforming your content into an engaging conversation",
		profile:  progress.ScriptProfile,
		fallback: "Script generation failed",
		success:  "Script generated successfully!",
	}
	opAudio = operation{
		stage:    progress.StageAudio,
		title:    "Generating Your Podcast Audio...",
		message:  "Converting the conversation to natural speech",
		profile:  progress.AudioProfile,
		fallback: "Audio generation failed",
		success:  "Your podcast is ready!",
	}
)

// run is one in-flight operation.
type run struct {
	op         operation
	epoch      uint64
	ctx        context.Context
	cancel     context.CancelFunc
	est        *progress.Estimator
	start      time.Time
	superseded atomic.Bool
}

// Controller owns one pipeline. Stage operations block until the collaborator
// answers and are meant to be called from their own goroutine; State, Reset
// and the selection methods may be called concurrently with them.
type Controller struct {
	backend   Backend
	opts      Options
	log       *slog.Logger
	baseCtx   context.Context
	sessionID string

	mu     sync.Mutex
	state  State
	epoch  uint64
	active *run
}

// NewController creates a controller in the select stage. Operations run
// under baseCtx (carrying the caller's trace) rather than the caller's
// context, so they end on Reset or when baseCtx is cancelled.
func NewController(baseCtx context.Context, backend Backend, opts Options) *Controller {
	if opts.Language == nil {
		opts.Language = func() script.Language { return script.DefaultLanguage }
	}
	if opts.OnProgress == nil {
		opts.OnProgress = progress.NopCallback
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	id := uuid.NewString()
	return &Controller{
		backend:   backend,
		opts:      opts,
		log:       logger.With("component", "pipeline", "session_id", id),
		baseCtx:   baseCtx,
		sessionID: id,
		state:     Initial(),
	}
}

// SessionID identifies this controller in logs and traces.
func (c *Controller) SessionID() string { return c.sessionID }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a stage operation is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// SelectDocument validates and records the user's chosen document. An invalid
// type is rejected without touching state.
func (c *Controller) SelectDocument(doc *ingest.Document) error {
	if err := ingest.Validate(doc); err != nil {
		msg := err.Error()
		if errors.Is(err, ingest.ErrUnsupportedType) {
			msg = "Please upload a PDF file"
		}
		c.notify(NoticeError, msg)
		return err
	}

	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return ErrBusy
	}
	if _, ok := c.state.(SelectState); !ok {
		c.mu.Unlock()
		return ErrWrongStage
	}
	next := SelectState{Document: doc}
	c.state = next
	c.mu.Unlock()

	c.log.Info("Document selected", "name", doc.Name, "size", doc.Size())
	c.changed(next)
	return nil
}

// RemoveDocument clears the chosen document.
func (c *Controller) RemoveDocument() error {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return ErrBusy
	}
	if _, ok := c.state.(SelectState); !ok {
		c.mu.Unlock()
		return ErrWrongStage
	}
	next := SelectState{}
	c.state = next
	c.mu.Unlock()

	c.changed(next)
	return nil
}

// Upload sends the selected document and moves to the preview stage.
func (c *Controller) Upload(ctx context.Context) error {
	return c.execute(ctx, opUpload, func(s State) (stageCall, error) {
		st, ok := s.(SelectState)
		if !ok || st.Document == nil {
			return nil, ErrPrecondition
		}
		return func(ctx context.Context) (State, error) {
			res, err := c.backend.Upload(ctx, st.Document)
			if err != nil {
				return nil, err
			}
			return PreviewState{Document: st.Document, Upload: res}, nil
		}, nil
	})
}

// GenerateScript asks for a script for the uploaded document and moves to the
// script-ready stage.
func (c *Controller) GenerateScript(ctx context.Context) error {
	return c.execute(ctx, opScript, func(s State) (stageCall, error) {
		st, ok := s.(PreviewState)
		if !ok || st.Upload.Ref == "" {
			return nil, ErrPrecondition
		}
		return func(ctx context.Context) (State, error) {
			lang := c.opts.Language()
			trace.SpanFromContext(ctx).SetAttributes(attribute.String("language", string(lang)))
			sc, err := c.backend.GenerateScript(ctx, st.Upload.Ref, lang)
			if err != nil {
				return nil, err
			}
			if sc == nil || len(sc.Turns) == 0 {
				return nil, errEmptyResult
			}
			return ScriptState{PreviewState: st, Script: sc}, nil
		}, nil
	})
}

// GenerateAudio renders the script to audio and moves to the audio-ready stage.
func (c *Controller) GenerateAudio(ctx context.Context) error {
	return c.execute(ctx, opAudio, func(s State) (stageCall, error) {
		st, ok := s.(ScriptState)
		if !ok || st.Script == nil {
			return nil, ErrPrecondition
		}
		return func(ctx context.Context) (State, error) {
			lang := c.opts.Language()
			trace.SpanFromContext(ctx).SetAttributes(
				attribute.String("language", string(lang)),
				attribute.Int("turns", len(st.Script.Turns)),
			)
			ref, err := c.backend.GenerateAudio(ctx, st.Script, st.Upload.Ref, lang)
			if err != nil {
				return nil, err
			}
			if ref == "" {
				return nil, errEmptyResult
			}
			return AudioState{ScriptState: st, Audio: ref}, nil
		}, nil
	})
}

// Stream opens the generated audio for playback.
func (c *Controller) Stream(ctx context.Context) (*artifact.Media, error) {
	ref, err := c.audioRef()
	if err != nil {
		return nil, err
	}
	return c.backend.Stream(ctx, ref)
}

// Download fetches the generated audio with its suggested filename.
func (c *Controller) Download(ctx context.Context) (*artifact.Media, error) {
	ref, err := c.audioRef()
	if err != nil {
		return nil, err
	}
	media, err := c.backend.Download(ctx, ref)
	if err != nil {
		c.notify(NoticeError, describe(err, "Download failed"))
		return nil, err
	}
	c.notify(NoticeSuccess, "Download started!")
	return media, nil
}

// Reset returns the pipeline to its initial state from any stage. An
// operation still in flight is cancelled and its eventual result discarded.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.epoch++
	r := c.active
	if r != nil {
		r.superseded.Store(true)
	}
	c.active = nil
	c.state = Initial()
	c.mu.Unlock()

	if r != nil {
		r.cancel()
		r.est.Stop()
		c.opts.OnProgress(progress.Event{Stage: r.op.stage, Active: false, Elapsed: time.Since(r.start)})
		c.log.Info("Pipeline reset with operation in flight", "stage", r.op.stage)
	} else {
		c.log.Info("Pipeline reset")
	}
	c.changed(Initial())
}

func (c *Controller) audioRef() (artifact.AudioRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.state.(AudioState)
	if !ok || st.Audio == "" {
		return "", ErrPrecondition
	}
	return st.Audio, nil
}

// stageCall performs the remote call and builds the next state.
type stageCall func(ctx context.Context) (State, error)

// execute runs one stage operation. prepare checks preconditions against the
// current state under the lock and returns the call to make.
func (c *Controller) execute(ctx context.Context, op operation, prepare func(State) (stageCall, error)) error {
	c.mu.Lock()
	call, err := prepare(c.state)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if c.active != nil {
		c.mu.Unlock()
		return ErrBusy
	}
	r := c.beginLocked(ctx, op)
	c.mu.Unlock()

	defer func() {
		r.cancel()
		r.est.Stop()
	}()

	ctx, span := tracer.Start(r.ctx, "pipeline."+string(op.stage),
		trace.WithAttributes(attribute.String("session_id", c.sessionID)),
	)
	defer span.End()

	log := c.log.With("stage", op.stage)
	log.InfoContext(ctx, "Stage starting")

	if op.fixed > 0 {
		c.report(r, op.fixed)
	} else {
		r.est.Start()
	}
	next, callErr := call(ctx)
	r.est.Stop()

	c.mu.Lock()
	if r.epoch != c.epoch {
		c.mu.Unlock()
		span.SetStatus(codes.Error, "superseded by reset")
		log.InfoContext(ctx, "Discarding result of reset pipeline", "error", callErr)
		return ErrSuperseded
	}
	c.active = nil
	if callErr != nil {
		c.mu.Unlock()
		serr := &StageError{Stage: op.stage, Message: describe(callErr, op.fallback), Err: callErr}
		span.RecordError(callErr)
		span.SetStatus(codes.Error, serr.Message)
		log.WarnContext(ctx, "Stage failed", "error", callErr, "elapsed", time.Since(r.start).Round(time.Millisecond))
		c.hide(r)
		c.notify(NoticeError, serr.Message)
		return serr
	}
	c.state = next
	c.mu.Unlock()

	r.est.Complete()
	c.hide(r)
	log.InfoContext(ctx, "Stage complete", "next", next.Stage(), "elapsed", time.Since(r.start).Round(time.Millisecond))
	c.notify(NoticeSuccess, op.success)
	c.changed(next)
	return nil
}

func (c *Controller) beginLocked(ctx context.Context, op operation) *run {
	runCtx, cancel := context.WithCancel(observability.DetachTraceContextFrom(ctx, c.baseCtx))
	r := &run{
		op:     op,
		epoch:  c.epoch,
		ctx:    runCtx,
		cancel: cancel,
		start:  time.Now(),
	}
	r.est = progress.NewEstimator(op.profile, func(v float64) { c.report(r, v) }, c.opts.estimatorOptions...)
	c.active = r
	return r
}

func (c *Controller) report(r *run, pct float64) {
	if r.superseded.Load() {
		return
	}
	c.opts.OnProgress(progress.Event{
		Stage:   r.op.stage,
		Title:   r.op.title,
		Message: r.op.message,
		Percent: pct,
		Active:  true,
		Elapsed: time.Since(r.start),
	})
}

func (c *Controller) hide(r *run) {
	c.opts.OnProgress(progress.Event{Stage: r.op.stage, Active: false, Elapsed: time.Since(r.start)})
}

func (c *Controller) notify(level NoticeLevel, msg string) {
	if c.opts.OnNotice != nil {
		c.opts.OnNotice(Notice{Level: level, Message: msg})
	}
}

func (c *Controller) changed(s State) {
	if c.opts.OnChange != nil {
		c.opts.OnChange(s)
	}
}
