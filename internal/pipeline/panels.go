package pipeline

// Panels says which sections of the interface may be shown. A panel is only
// ever true when the artifact it displays is present in the state.
type Panels struct {
	UploadZone    bool
	FileInfo      bool
	UploadAction  bool
	Preview       bool
	ScriptAction  bool
	Script        bool
	AudioAction   bool
	Audio         bool
	DownloadAudio bool
	ResetAction   bool
}

// PanelsFor derives panel visibility from s.
func PanelsFor(s State) Panels {
	switch st := s.(type) {
	case SelectState:
		hasDoc := st.Document != nil
		return Panels{
			UploadZone:   !hasDoc,
			FileInfo:     hasDoc,
			UploadAction: hasDoc,
		}
	case PreviewState:
		return Panels{
			FileInfo:     true,
			Preview:      st.Upload.Ref != "",
			ScriptAction: st.Upload.Ref != "",
			ResetAction:  true,
		}
	case ScriptState:
		hasScript := st.Script != nil
		return Panels{
			FileInfo:    true,
			Preview:     st.Upload.Ref != "",
			Script:      hasScript,
			AudioAction: hasScript,
			ResetAction: true,
		}
	case AudioState:
		hasAudio := st.Audio != ""
		return Panels{
			FileInfo:      true,
			Preview:       st.Upload.Ref != "",
			Script:        st.Script != nil,
			Audio:         hasAudio,
			DownloadAudio: hasAudio,
			ResetAction:   true,
		}
	default:
		return Panels{UploadZone: true}
	}
}

// StepStatus is the look of one step in the stage indicator.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepActive
	StepCompleted
)

func (s StepStatus) String() string {
	switch s {
	case StepActive:
		return "active"
	case StepCompleted:
		return "completed"
	default:
		return "pending"
	}
}

// Step is one entry of the stage indicator.
type Step struct {
	Label  string
	Status StepStatus
}

var stepLabels = [...]string{"Upload PDF", "Preview", "Script", "Podcast"}

// Steps returns the four-step indicator for s. Steps before the current stage
// are completed, the current one is active.
func Steps(s State) []Step {
	current := int(StageSelect)
	if s != nil {
		current = int(s.Stage())
	}
	steps := make([]Step, len(stepLabels))
	for i, label := range stepLabels {
		status := StepPending
		switch {
		case i < current:
			status = StepCompleted
		case i == current:
			status = StepActive
		}
		steps[i] = Step{Label: label, Status: status}
	}
	return steps
}
