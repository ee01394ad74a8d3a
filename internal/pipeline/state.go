package pipeline

import (
	"github.com/apresai/pdfcast/internal/artifact"
	"github.com/apresai/pdfcast/internal/ingest"
	"github.com/apresai/pdfcast/internal/script"
)

// Stage is the visible phase of the pipeline.
type Stage int

const (
	StageSelect Stage = iota
	StagePreview
	StageScriptReady
	StageAudioReady
)

func (s Stage) String() string {
	switch s {
	case StageSelect:
		return "select"
	case StagePreview:
		return "preview"
	case StageScriptReady:
		return "script_ready"
	case StageAudioReady:
		return "audio_ready"
	default:
		return "unknown"
	}
}

// State is the pipeline's current configuration. It is always one of
// SelectState, PreviewState, ScriptState or AudioState; each later variant
// embeds the one before it, so an artifact can only be present together with
// everything it was produced from.
type State interface {
	Stage() Stage
	isState()
}

// SelectState is the initial stage. Document is the chosen input, or nil.
type SelectState struct {
	Document *ingest.Document
}

// PreviewState holds a successfully uploaded document.
type PreviewState struct {
	Document *ingest.Document
	Upload   artifact.UploadResult
}

// ScriptState holds a generated script.
type ScriptState struct {
	PreviewState
	Script *script.Script
}

// AudioState holds generated audio.
type AudioState struct {
	ScriptState
	Audio artifact.AudioRef
}

func (SelectState) Stage() Stage  { return StageSelect }
func (PreviewState) Stage() Stage { return StagePreview }
func (ScriptState) Stage() Stage  { return StageScriptReady }
func (AudioState) Stage() Stage   { return StageAudioReady }

func (SelectState) isState()  {}
func (PreviewState) isState() {}
func (ScriptState) isState()  {}
func (AudioState) isState()   {}

// Initial returns the state a fresh or reset pipeline is in.
func Initial() State {
	return SelectState{}
}

// Snapshot is a flat view of a State with every optional field spelled out.
type Snapshot struct {
	Stage       Stage
	Document    *ingest.Document
	DocumentRef artifact.DocumentRef
	Preview     string
	Script      *script.Script
	Audio       artifact.AudioRef
}

// Describe flattens s.
func Describe(s State) Snapshot {
	switch st := s.(type) {
	case SelectState:
		return Snapshot{Stage: StageSelect, Document: st.Document}
	case PreviewState:
		return describePreview(st)
	case ScriptState:
		snap := describePreview(st.PreviewState)
		snap.Stage = StageScriptReady
		snap.Script = st.Script
		return snap
	case AudioState:
		snap := describePreview(st.PreviewState)
		snap.Stage = StageAudioReady
		snap.Script = st.Script
		snap.Audio = st.Audio
		return snap
	default:
		return Snapshot{Stage: StageSelect}
	}
}

func describePreview(st PreviewState) Snapshot {
	return Snapshot{
		Stage:       StagePreview,
		Document:    st.Document,
		DocumentRef: st.Upload.Ref,
		Preview:     st.Upload.Preview,
	}
}
