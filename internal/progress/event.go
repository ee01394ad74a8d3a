package progress

import "time"

// Stage identifies which remote operation a progress event belongs to.
type Stage string

const (
	StageUpload Stage = "upload"
	StageScript Stage = "script"
	StageAudio  Stage = "audio"
)

// Event carries progress information from the controller to the renderer.
type Event struct {
	Stage   Stage
	Title   string
	Message string
	Percent float64 // 0–100
	// Active is false once the operation has finished and the loading
	// display should be hidden.
	Active  bool
	Elapsed time.Duration
	Error   error
}

// Callback is the function signature for progress event handlers.
type Callback func(Event)

// NopCallback is a no-op progress callback for tests and silent mode.
func NopCallback(Event) {}
