package errorPresenter

import (
	"sync"
	"time"

	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

const DefaultDisplayDuration = 3 * time.Second

// PresentedError is the failure currently shown to the user
type PresentedError struct {
	Reason *types.FailureReason `json:"reason"`
	At     time.Time            `json:"at"`
}

type ErrorPresenterConfig struct {
	// DisplayDuration is how long an error stays visible before it clears itself
	DisplayDuration time.Duration
}

// ErrorPresenter holds the last user-visible failure and clears it after
// DisplayDuration. At most one delayed clear is pending; presenting a new
// error or clearing explicitly cancels it.
type ErrorPresenter struct {
	logger   *zap.Logger
	clock    clock.WithDelayedExecution
	duration time.Duration

	mu         sync.Mutex
	current    *PresentedError
	timer      clock.Timer
	generation uint64
	listeners  []func(*PresentedError)
}

func NewErrorPresenter(cfg *ErrorPresenterConfig, clk clock.WithDelayedExecution, logger *zap.Logger) *ErrorPresenter {
	duration := DefaultDisplayDuration
	if cfg != nil && cfg.DisplayDuration > 0 {
		duration = cfg.DisplayDuration
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &ErrorPresenter{
		logger:   logger,
		clock:    clk,
		duration: duration,
	}
}

// OnChange registers fn to be called whenever the presented error changes,
// with nil once it is cleared. fn may be called from a timer goroutine.
func (e *ErrorPresenter) OnChange(fn func(*PresentedError)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Present shows reason and schedules its removal, replacing any pending one
func (e *ErrorPresenter) Present(reason *types.FailureReason) {
	if reason == nil {
		return
	}
	presented := &PresentedError{Reason: reason, At: e.clock.Now()}

	e.mu.Lock()
	e.generation++
	gen := e.generation
	previous := e.timer
	e.timer = nil
	e.current = presented
	listeners := e.listeners
	e.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}

	e.logger.Debug("Presenting error",
		zap.String("kind", string(reason.Kind)),
		zap.String("message", reason.Error()),
		zap.Duration("displayFor", e.duration),
	)
	notify(listeners, presented)

	timer := e.clock.AfterFunc(e.duration, func() {
		e.expire(gen)
	})

	e.mu.Lock()
	if e.generation == gen && e.current != nil {
		e.timer = timer
		timer = nil
	}
	e.mu.Unlock()
	if timer != nil {
		// superseded or already expired before the timer was recorded
		timer.Stop()
	}
}

// Clear removes the presented error and cancels its pending clear
func (e *ErrorPresenter) Clear() {
	e.mu.Lock()
	e.generation++
	hadError := e.current != nil
	previous := e.timer
	e.timer = nil
	e.current = nil
	listeners := e.listeners
	e.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}
	if hadError {
		notify(listeners, nil)
	}
}

// LastError returns the presented error, or nil when nothing is shown
func (e *ErrorPresenter) LastError() *PresentedError {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	copied := *e.current
	return &copied
}

// Pending reports whether a delayed clear is scheduled
func (e *ErrorPresenter) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timer != nil
}

func (e *ErrorPresenter) DisplayDuration() time.Duration {
	return e.duration
}

// expire runs on the timer. It must not call back into the clock.
func (e *ErrorPresenter) expire(gen uint64) {
	e.mu.Lock()
	if gen != e.generation || e.current == nil {
		e.mu.Unlock()
		return
	}
	e.current = nil
	e.timer = nil
	listeners := e.listeners
	e.mu.Unlock()

	e.logger.Debug("Presented error expired")
	notify(listeners, nil)
}

func notify(listeners []func(*PresentedError), presented *PresentedError) {
	for _, fn := range listeners {
		fn(presented)
	}
}
