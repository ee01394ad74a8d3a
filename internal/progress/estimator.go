package progress

import (
	"math/rand/v2"
	"sync"
	"time"
)

const (
	// Ceiling is the highest value ticking can reach. Only Complete goes past it.
	Ceiling = 90.0
	// Done is the value reported by Complete.
	Done = 100.0
)

// Profile controls how fast an estimate grows.
type Profile struct {
	Interval time.Duration
	MaxStep  float64 // each tick adds a random amount in [0, MaxStep)
}

// UploadPercent is shown for the whole upload. Uploads do not tick.
const UploadPercent = 20.0

// Profiles for the ticking stages.
var (
	ScriptProfile = Profile{Interval: 500 * time.Millisecond, MaxStep: 15}
	AudioProfile  = Profile{Interval: time.Second, MaxStep: 5}
)

// Estimator produces a synthetic, non-decreasing progress value for an
// operation that only reports completion. Ticking never passes Ceiling.
type Estimator struct {
	profile Profile
	report  func(float64)
	rand    func() float64

	mu      sync.Mutex
	value   float64
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// EstimatorOption configures an Estimator.
type EstimatorOption func(*Estimator)

// WithRand replaces the random source. fn must return values in [0, 1).
func WithRand(fn func() float64) EstimatorOption {
	return func(e *Estimator) { e.rand = fn }
}

// NewEstimator creates a stopped estimator. report receives every new value
// from the ticking goroutine and may be nil.
func NewEstimator(p Profile, report func(float64), opts ...EstimatorOption) *Estimator {
	if report == nil {
		report = func(float64) {}
	}
	e := &Estimator{
		profile: p,
		report:  report,
		rand:    rand.Float64,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start resets the estimate to 0 and begins ticking. A running estimator is
// stopped first.
func (e *Estimator) Start() {
	e.Stop()

	e.mu.Lock()
	e.value = 0
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	e.running = true
	v, stop, done := e.value, e.stop, e.done
	e.mu.Unlock()

	e.report(v)
	go e.tick(stop, done)
}

// Stop halts ticking. It is safe to call before the first tick and more than
// once. When Stop returns no further report will be made.
func (e *Estimator) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stop)
	done := e.done
	e.mu.Unlock()

	<-done
}

// Complete stops ticking and reports Done.
func (e *Estimator) Complete() {
	e.Stop()
	e.mu.Lock()
	e.value = Done
	e.mu.Unlock()
	e.report(Done)
}

// Value returns the current estimate.
func (e *Estimator) Value() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

func (e *Estimator) tick(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := e.profile.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		// Stop may have raced the tick; give it priority.
		select {
		case <-stop:
			return
		default:
		}

		e.mu.Lock()
		step := e.rand() * e.profile.MaxStep
		if step < 0 {
			step = 0
		}
		e.value = clamp(e.value + step)
		v := e.value
		e.mu.Unlock()

		e.report(v)
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > Ceiling {
		return Ceiling
	}
	return v
}
