package pipeline

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/apresai/pdfcast/internal/artifact"
	"github.com/apresai/pdfcast/internal/ingest"
	"github.com/apresai/pdfcast/internal/progress"
	"github.com/apresai/pdfcast/internal/script"
)

// fakeBackend is a scriptable collaborator. Hooks left nil succeed with
// canned values.
type fakeBackend struct {
	mu sync.Mutex

	uploadFn func(ctx context.Context, doc *ingest.Document) (artifact.UploadResult, error)
	scriptFn func(ctx context.Context, ref artifact.DocumentRef, lang script.Language) (*script.Script, error)
	audioFn  func(ctx context.Context, s *script.Script, ref artifact.DocumentRef, lang script.Language) (artifact.AudioRef, error)

	uploads, scripts, audios int
	langs                    []script.Language
}

func (f *fakeBackend) Upload(ctx context.Context, doc *ingest.Document) (artifact.UploadResult, error) {
	f.mu.Lock()
	f.uploads++
	fn := f.uploadFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, doc)
	}
	return artifact.UploadResult{Ref: "01HX-lecture.pdf", Preview: "Photosynthesis converts light...", TextLength: 2400}, nil
}

func (f *fakeBackend) GenerateScript(ctx context.Context, ref artifact.DocumentRef, lang script.Language) (*script.Script, error) {
	f.mu.Lock()
	f.scripts++
	f.langs = append(f.langs, lang)
	fn := f.scriptFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, ref, lang)
	}
	return testScript(), nil
}

func (f *fakeBackend) GenerateAudio(ctx context.Context, s *script.Script, ref artifact.DocumentRef, lang script.Language) (artifact.AudioRef, error) {
	f.mu.Lock()
	f.audios++
	f.langs = append(f.langs, lang)
	fn := f.audioFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, s, ref, lang)
	}
	return "lecture_podcast.mp3", nil
}

func (f *fakeBackend) Stream(ctx context.Context, ref artifact.AudioRef) (*artifact.Media, error) {
	return &artifact.Media{Name: ref.String(), ContentType: "audio/mpeg", Body: io.NopCloser(strings.NewReader("ID3"))}, nil
}

func (f *fakeBackend) Download(ctx context.Context, ref artifact.AudioRef) (*artifact.Media, error) {
	return f.Stream(ctx, ref)
}

func (f *fakeBackend) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads, f.scripts, f.audios
}

type recorder struct {
	mu      sync.Mutex
	events  []progress.Event
	notices []Notice
	changes []Stage
}

func (r *recorder) options() Options {
	return Options{
		OnProgress: func(e progress.Event) {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
		},
		OnNotice: func(n Notice) {
			r.mu.Lock()
			r.notices = append(r.notices, n)
			r.mu.Unlock()
		},
		OnChange: func(s State) {
			r.mu.Lock()
			r.changes = append(r.changes, s.Stage())
			r.mu.Unlock()
		},
	}
}

func (r *recorder) lastNotice() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}
	}
	return r.notices[len(r.notices)-1]
}

func (r *recorder) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) eventsSince(n int) []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Event, len(r.events)-n)
	copy(out, r.events[n:])
	return out
}

func testScript() *script.Script {
	return &script.Script{
		Title: "Light and Leaves",
		Turns: []script.Turn{
			{Speaker: script.RoleTeacher, Text: "Today we talk about photosynthesis."},
			{Speaker: script.RoleStudent, Text: "Why are leaves green?"},
		},
	}
}

func testDocument() *ingest.Document {
	return &ingest.Document{Name: "lecture.pdf", ContentType: ingest.ContentTypePDF, Data: []byte("%PDF-1.7")}
}

func newTestController(t *testing.T, fb *fakeBackend, rec *recorder) *Controller {
	t.Helper()
	opts := rec.options()
	opts.Language = func() script.Language { return "en" }
	opts.estimatorOptions = []progress.EstimatorOption{progress.WithRand(func() float64 { return 0.5 })}
	return NewController(context.Background(), fb, opts)
}

// advanceTo drives c through successful operations until it reaches want.
func advanceTo(t *testing.T, c *Controller, want Stage) {
	t.Helper()
	ctx := context.Background()
	if err := c.SelectDocument(testDocument()); err != nil {
		t.Fatalf("SelectDocument: %v", err)
	}
	steps := []func(context.Context) error{c.Upload, c.GenerateScript, c.GenerateAudio}
	for i := 0; i < int(want); i++ {
		if err := steps[i](ctx); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if got := c.State().Stage(); got != want {
		t.Fatalf("stage = %v, want %v", got, want)
	}
}

func checkInvariants(t *testing.T, s State) {
	t.Helper()
	snap := Describe(s)
	if snap.Audio != "" && snap.Script == nil {
		t.Fatal("audio present without script")
	}
	if snap.Script != nil && snap.DocumentRef == "" {
		t.Fatal("script present without document reference")
	}
	if snap.DocumentRef != "" && snap.Document == nil {
		t.Fatal("document reference present without document")
	}
}

// TestStagesAdvanceInOrder verifies successful operations move through every
// stage exactly once and in order.
func TestStagesAdvanceInOrder(t *testing.T) {
	fb := &fakeBackend{}
	rec := &recorder{}
	c := newTestController(t, fb, rec)
	ctx := context.Background()

	if err := c.SelectDocument(testDocument()); err != nil {
		t.Fatalf("SelectDocument: %v", err)
	}
	prev := c.State().Stage()
	for i, op := range []func(context.Context) error{c.Upload, c.GenerateScript, c.GenerateAudio} {
		if err := op(ctx); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
		s := c.State()
		checkInvariants(t, s)
		if s.Stage() != prev+1 {
			t.Fatalf("op %d: stage = %v, want %v", i, s.Stage(), prev+1)
		}
		prev = s.Stage()
	}

	want := []Stage{StageSelect, StagePreview, StageScriptReady, StageAudioReady}
	if !reflect.DeepEqual(rec.changes, want) {
		t.Fatalf("changes = %v, want %v", rec.changes, want)
	}
	if got := rec.lastNotice(); got != (Notice{Level: NoticeSuccess, Message: "Your podcast is ready!"}) {
		t.Fatalf("last notice = %+v", got)
	}
}

// TestUploadCommitsReferenceAndPreview checks the upload scenario.
func TestUploadCommitsReferenceAndPreview(t *testing.T) {
	fb := &fakeBackend{}
	rec := &recorder{}
	c := newTestController(t, fb, rec)
	advanceTo(t, c, StagePreview)

	snap := Describe(c.State())
	if snap.DocumentRef != "01HX-lecture.pdf" {
		t.Fatalf("DocumentRef = %q", snap.DocumentRef)
	}
	if snap.Preview == "" {
		t.Fatal("preview is empty")
	}
	if snap.Document == nil || snap.Document.Name != "lecture.pdf" {
		t.Fatalf("Document = %+v", snap.Document)
	}
	if got := rec.lastNotice().Message; got != "PDF uploaded successfully!" {
		t.Fatalf("notice = %q", got)
	}
}

// TestInvalidDocumentNeverUploads checks that a non-PDF is rejected before any
// stage begins.
func TestInvalidDocumentNeverUploads(t *testing.T) {
	fb := &fakeBackend{}
	rec := &recorder{}
	c := newTestController(t, fb, rec)

	err := c.SelectDocument(&ingest.Document{Name: "notes.txt", ContentType: "text/plain", Data: []byte("hello")})
	if !errors.Is(err, ingest.ErrUnsupportedType) {
		t.Fatalf("SelectDocument err = %v, want ErrUnsupportedType", err)
	}
	if got := rec.lastNotice(); got != (Notice{Level: NoticeError, Message: "Please upload a PDF file"}) {
		t.Fatalf("notice = %+v", got)
	}
	if err := c.Upload(context.Background()); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("Upload err = %v, want ErrPrecondition", err)
	}
	if uploads, _, _ := fb.counts(); uploads != 0 {
		t.Fatalf("uploads = %d, want 0", uploads)
	}
	if !reflect.DeepEqual(c.State(), Initial()) {
		t.Fatalf("state = %#v, want initial", c.State())
	}
}

// TestGenerateScriptInEnglish checks the script scenario and that the
// language is read at call time.
func TestGenerateScriptInEnglish(t *testing.T) {
	fb := &fakeBackend{}
	rec := &recorder{}
	lang := script.Language("fr")
	opts := rec.options()
	opts.Language = func() script.Language { return lang }
	c := NewController(context.Background(), fb, opts)

	if err := c.SelectDocument(testDocument()); err != nil {
		t.Fatal(err)
	}
	if err := c.Upload(context.Background()); err != nil {
		t.Fatal(err)
	}
	lang = "en"
	if err := c.GenerateScript(context.Background()); err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}

	st, ok := c.State().(ScriptState)
	if !ok {
		t.Fatalf("state = %T, want ScriptState", c.State())
	}
	if len(st.Script.Turns) < 1 {
		t.Fatal("script has no turns")
	}
	if got := fb.langs; !reflect.DeepEqual(got, []script.Language{"en"}) {
		t.Fatalf("languages = %v, want [en]", got)
	}
}

// TestFailureLeavesStateUnchanged runs a failing operation from every stage.
func TestFailureLeavesStateUnchanged(t *testing.T) {
	boom := &artifact.RemoteError{StatusCode: 500, Message: "TTS quota exceeded"}
	tests := []struct {
		name  string
		from  Stage
		setup func(*fakeBackend)
		op    func(*Controller) func(context.Context) error
	}{
		{
			name:  "upload",
			from:  StageSelect,
			setup: func(f *fakeBackend) { f.uploadFn = func(context.Context, *ingest.Document) (artifact.UploadResult, error) { return artifact.UploadResult{}, boom } },
			op:    func(c *Controller) func(context.Context) error { return c.Upload },
		},
		{
			name: "script",
			from: StagePreview,
			setup: func(f *fakeBackend) {
				f.scriptFn = func(context.Context, artifact.DocumentRef, script.Language) (*script.Script, error) { return nil, boom }
			},
			op: func(c *Controller) func(context.Context) error { return c.GenerateScript },
		},
		{
			name: "audio",
			from: StageScriptReady,
			setup: func(f *fakeBackend) {
				f.audioFn = func(context.Context, *script.Script, artifact.DocumentRef, script.Language) (artifact.AudioRef, error) {
					return "", boom
				}
			},
			op: func(c *Controller) func(context.Context) error { return c.GenerateAudio },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeBackend{}
			rec := &recorder{}
			c := newTestController(t, fb, rec)
			advanceTo(t, c, tt.from)
			tt.setup(fb)

			before := Describe(c.State())
			mark := rec.eventCount()
			err := tt.op(c)(context.Background())

			var serr *StageError
			if !errors.As(err, &serr) {
				t.Fatalf("err = %v, want *StageError", err)
			}
			if serr.Message != "TTS quota exceeded" {
				t.Fatalf("Message = %q, want collaborator message", serr.Message)
			}
			if !errors.Is(err, boom) {
				t.Fatal("StageError does not unwrap to the collaborator error")
			}
			if after := Describe(c.State()); !reflect.DeepEqual(after, before) {
				t.Fatalf("state changed on failure:\nbefore %+v\nafter  %+v", before, after)
			}
			if got := rec.lastNotice(); got != (Notice{Level: NoticeError, Message: "TTS quota exceeded"}) {
				t.Fatalf("notice = %+v", got)
			}
			for _, e := range rec.eventsSince(mark) {
				if e.Percent >= progress.Done {
					t.Fatalf("progress reached %v on failure", e.Percent)
				}
			}
		})
	}
}

// TestAudioFailureKeepsScriptReady checks the audio failure scenario.
func TestAudioFailureKeepsScriptReady(t *testing.T) {
	fb := &fakeBackend{}
	rec := &recorder{}
	c := newTestController(t, fb, rec)
	advanceTo(t, c, StageScriptReady)

	fb.audioFn = func(context.Context, *script.Script, artifact.DocumentRef, script.Language) (artifact.AudioRef, error) {
		return "", &artifact.RemoteError{StatusCode: 400, Message: "No conversation found in script"}
	}
	err := c.GenerateAudio(context.Background())
	var serr *StageError
	if !errors.As(err, &serr) || serr.Message != "No conversation found in script" {
		t.Fatalf("err = %v", err)
	}

	s := c.State()
	if s.Stage() != StageScriptReady {
		t.Fatalf("stage = %v, want script_ready", s.Stage())
	}
	if Describe(s).Audio != "" {
		t.Fatal("audio reference set after failure")
	}
}

// TestFailureFallsBackToGenericMessage covers collaborators that give no reason.
func TestFailureFallsBackToGenericMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"empty remote message", &artifact.RemoteError{StatusCode: 502}, "Script generation failed"},
		{"empty error text", errors.New(""), "Script generation failed"},
		{"network error", errors.New("dial tcp: connection refused"), "dial tcp: connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeBackend{}
			rec := &recorder{}
			c := newTestController(t, fb, rec)
			advanceTo(t, c, StagePreview)
			fb.scriptFn = func(context.Context, artifact.DocumentRef, script.Language) (*script.Script, error) {
				return nil, tt.err
			}

			err := c.GenerateScript(context.Background())
			var serr *StageError
			if !errors.As(err, &serr) {
				t.Fatalf("err = %v", err)
			}
			if serr.Message != tt.want {
				t.Fatalf("Message = %q, want %q", serr.Message, tt.want)
			}
		})
	}
}

// TestEmptyScriptIsAFailure treats a script without turns as malformed.
func TestEmptyScriptIsAFailure(t *testing.T) {
	fb := &fakeBackend{}
	rec := &recorder{}
	c := newTestController(t, fb, rec)
	advanceTo(t, c, StagePreview)
	fb.scriptFn = func(context.Context, artifact.DocumentRef, script.Language) (*script.Script, error) {
		return &script.Script{Title: "Empty"}, nil
	}

	err := c.GenerateScript(context.Background())
	var serr *StageError
	if !errors.As(err, &serr) || serr.Message != "Script generation failed" {
		t.Fatalf("err = %v", err)
	}
	if c.State().Stage() != StagePreview {
		t.Fatalf("stage = %v, want preview", c.State().Stage())
	}
}

// TestRetryAfterFailure verifies the same operation can be re-invoked.
func TestRetryAfterFailure(t *testing.T) {
	fb := &fakeBackend{}
	rec := &recorder{}
	c := newTestController(t, fb, rec)
	failures := 1
	fb.uploadFn = func(ctx context.Context, doc *ingest.Document) (artifact.UploadResult, error) {
		if failures > 0 {
			failures--
			return artifact.UploadResult{}, errors.New("connection reset")
		}
		return artifact.UploadResult{Ref: "01HX-lecture.pdf", Preview: "text"}, nil
	}

	if err := c.SelectDocument(testDocument()); err != nil {
		t.Fatal(err)
	}
	if err := c.Upload(context.Background()); err == nil {
		t.Fatal("first upload succeeded, want failure")
	}
	if err := c.Upload(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if c.State().Stage() != StagePreview {
		t.Fatalf("stage = %v, want preview", c.State().Stage())
	}
}

// TestResetFromEveryStage verifies reset always yields the initial state.
func TestResetFromEveryStage(t *testing.T) {
	for _, stage := range []Stage{StageSelect, StagePreview, StageScriptReady, StageAudioReady} {
		t.Run(stage.String(), func(t *testing.T) {
			fb := &fakeBackend{}
			rec := &recorder{}
			c := newTestController(t, fb, rec)
			advanceTo(t, c, stage)

			c.Reset()
			if !reflect.DeepEqual(c.State(), Initial()) {
				t.Fatalf("state = %#v, want initial", c.State())
			}
			if !reflect.DeepEqual(Describe(c.State()), Snapshot{Stage: StageSelect}) {
				t.Fatalf("snapshot = %+v", Describe(c.State()))
			}
		})
	}
}

// TestResetDuringScriptGeneration checks that a success arriving after a
// reset does not resurrect the script.
func TestResetDuringScriptGeneration(t *testing.T) {
	fb := &fakeBackend{}
	rec := &recorder{}
	c := newTestController(t, fb, rec)
	advanceTo(t, c, StagePreview)

	entered := make(chan struct{})
	release := make(chan struct{})
	fb.scriptFn = func(ctx context.Context, ref artifact.DocumentRef, lang script.Language) (*script.Script, error) {
		close(entered)
		<-release
		return testScript(), nil
	}

	done := make(chan error, 1)
	go func() { done <- c.GenerateScript(context.Background()) }()
	<-entered

	c.Reset()
	mark := rec.eventCount()
	close(release)

	select {
	case err := <-done:
		if !errors.Is(err, ErrSuperseded) {
			t.Fatalf("err = %v, want ErrSuperseded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("GenerateScript did not return")
	}

	if !reflect.DeepEqual(c.State(), Initial()) {
		t.Fatalf("state = %#v, want initial", c.State())
	}
	for _, e := range rec.eventsSince(mark) {
		if e.Active {
			t.Fatalf("progress event after reset: %+v", e)
		}
	}
	if c.Busy() {
		t.Fatal("controller still busy after superseded operation returned")
	}
}

// TestResetCancelsInFlightContext verifies the collaborator sees cancellation.
func TestResetCancelsInFlightContext(t *testing.T) {
	fb := &fakeBackend{}
	rec := &recorder{}
	c := newTestController(t, fb, rec)
	advanceTo(t, c, StageScriptReady)

	entered := make(chan struct{})
	fb.audioFn = func(ctx context.Context, s *script.Script, ref artifact.DocumentRef, lang script.Language) (artifact.AudioRef, error) {
		close(entered)
		<-ctx.Done()
		return "", ctx.Err()
	}

	done := make(chan error, 1)
	go func() { done <- c.GenerateAudio(context.Background()) }()
	<-entered
	c.Reset()

	select {
	case err := <-done:
		if !errors.Is(err, ErrSuperseded) {
			t.Fatalf("err = %v, want ErrSuperseded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("GenerateAudio ignored cancellation")
	}
	if got := rec.lastNotice(); got.Level == NoticeError {
		t.Fatalf("error notice after reset: %+v", got)
	}
}

// TestDoubleSubmissionIsRejected verifies a second trigger while in flight
// does not call the collaborator again.
func TestDoubleSubmissionIsRejected(t *testing.T) {
	fb := &fakeBackend{}
	rec := &recorder{}
	c := newTestController(t, fb, rec)

	entered := make(chan struct{})
	release := make(chan struct{})
	fb.uploadFn = func(ctx context.Context, doc *ingest.Document) (artifact.UploadResult, error) {
		close(entered)
		<-release
		return artifact.UploadResult{Ref: "01HX-lecture.pdf", Preview: "text"}, nil
	}
	if err := c.SelectDocument(testDocument()); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Upload(context.Background()) }()
	<-entered

	if err := c.Upload(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Upload err = %v, want ErrBusy", err)
	}
	if err := c.RemoveDocument(); !errors.Is(err, ErrBusy) {
		t.Fatalf("RemoveDocument err = %v, want ErrBusy", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Upload: %v", err)
	}
	if uploads, _, _ := fb.counts(); uploads != 1 {
		t.Fatalf("uploads = %d, want 1", uploads)
	}
}

// TestPreconditionsSkipCollaborator verifies operations out of order never
// reach the backend.
func TestPreconditionsSkipCollaborator(t *testing.T) {
	fb := &fakeBackend{}
	rec := &recorder{}
	c := newTestController(t, fb, rec)
	ctx := context.Background()

	if err := c.GenerateScript(ctx); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("GenerateScript err = %v", err)
	}
	if err := c.GenerateAudio(ctx); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("GenerateAudio err = %v", err)
	}
	if _, err := c.Stream(ctx); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("Stream err = %v", err)
	}
	if _, err := c.Download(ctx); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("Download err = %v", err)
	}

	advanceTo(t, c, StagePreview)
	if err := c.Upload(ctx); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("second Upload err = %v", err)
	}
	if err := c.GenerateAudio(ctx); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("GenerateAudio from preview err = %v", err)
	}
	if err := c.SelectDocument(testDocument()); !errors.Is(err, ErrWrongStage) {
		t.Fatalf("SelectDocument from preview err = %v", err)
	}

	if uploads, scripts, audios := fb.counts(); uploads != 1 || scripts != 0 || audios != 0 {
		t.Fatalf("calls = %d/%d/%d, want 1/0/0", uploads, scripts, audios)
	}
}

// TestProgressReachesDoneOnlyOnSuccess checks the events of a successful run.
func TestProgressReachesDoneOnlyOnSuccess(t *testing.T) {
	fb := &fakeBackend{}
	rec := &recorder{}
	c := newTestController(t, fb, rec)
	advanceTo(t, c, StagePreview)
	fb.scriptFn = func(ctx context.Context, ref artifact.DocumentRef, lang script.Language) (*script.Script, error) {
		time.Sleep(1200 * time.Millisecond)
		return testScript(), nil
	}
	mark := len(rec.eventsSince(0))
	if err := c.GenerateScript(context.Background()); err != nil {
		t.Fatal(err)
	}

	events := rec.eventsSince(mark)
	var active []progress.Event
	for _, e := range events {
		if e.Active {
			active = append(active, e)
		}
	}
	if len(active) < 3 {
		t.Fatalf("got %d active events, want start, ticks and completion", len(active))
	}
	if active[0].Percent != 0 || active[0].Title != "Creating Your Podcast Script..." {
		t.Fatalf("first event = %+v", active[0])
	}
	prev := 0.0
	for i, e := range active {
		if e.Percent < prev || e.Percent < 0 || e.Percent > progress.Done {
			t.Fatalf("event %d percent %v after %v", i, e.Percent, prev)
		}
		if e.Percent == progress.Done && i != len(active)-1 {
			t.Fatalf("event %d reached 100 before completion", i)
		}
		prev = e.Percent
	}
	if prev != progress.Done {
		t.Fatalf("last percent = %v, want 100", prev)
	}
	if last := events[len(events)-1]; last.Active {
		t.Fatal("loading not hidden after success")
	}
}

// TestUploadShowsFixedProgress verifies uploads hold at a fixed percent
// instead of ticking.
func TestUploadShowsFixedProgress(t *testing.T) {
	fb := &fakeBackend{}
	rec := &recorder{}
	c := newTestController(t, fb, rec)
	if err := c.SelectDocument(testDocument()); err != nil {
		t.Fatal(err)
	}
	fb.uploadFn = func(ctx context.Context, doc *ingest.Document) (artifact.UploadResult, error) {
		time.Sleep(1200 * time.Millisecond)
		return artifact.UploadResult{Ref: "01HX-lecture.pdf", Preview: "text"}, nil
	}
	if err := c.Upload(context.Background()); err != nil {
		t.Fatal(err)
	}

	var got []float64
	for _, e := range rec.eventsSince(0) {
		if e.Active {
			got = append(got, e.Percent)
		}
	}
	want := []float64{progress.UploadPercent, progress.Done}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("upload percents = %v, want %v", got, want)
	}
}

// TestDownloadNotifies verifies the media and the download notice.
func TestDownloadNotifies(t *testing.T) {
	fb := &fakeBackend{}
	rec := &recorder{}
	c := newTestController(t, fb, rec)
	advanceTo(t, c, StageAudioReady)

	media, err := c.Download(context.Background())
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer media.Body.Close()
	if media.Name != "lecture_podcast.mp3" {
		t.Fatalf("Name = %q", media.Name)
	}
	if got := rec.lastNotice().Message; got != "Download started!" {
		t.Fatalf("notice = %q", got)
	}
}

// TestRemoveDocument clears the selection.
func TestRemoveDocument(t *testing.T) {
	c := newTestController(t, &fakeBackend{}, &recorder{})
	if err := c.SelectDocument(testDocument()); err != nil {
		t.Fatal(err)
	}
	if err := c.RemoveDocument(); err != nil {
		t.Fatalf("RemoveDocument: %v", err)
	}
	if !reflect.DeepEqual(c.State(), Initial()) {
		t.Fatalf("state = %#v, want initial", c.State())
	}
}
