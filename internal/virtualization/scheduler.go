package virtualization

import (
	"sync"
	"time"
)

// FrameInterval approximates one animation frame; scroll-driven
// recomputation is coalesced to at most one per interval.
const FrameInterval = 16 * time.Millisecond

// Scheduler coalesces recompute requests: at most one recomputation is
// scheduled at a time, and a newer request supersedes the one pending.
type Scheduler struct {
	interval time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending func()
	stopped bool
}

// NewScheduler returns a scheduler firing at most once per interval.
// A non-positive interval falls back to FrameInterval.
func NewScheduler(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = FrameInterval
	}
	return &Scheduler{interval: interval}
}

// Schedule queues fn for the next frame. If a recomputation is already
// pending, fn replaces it; only the newest request runs.
func (s *Scheduler) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	s.pending = fn
	if s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.interval, s.fire)
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	fn := s.pending
	s.pending = nil
	s.timer = nil
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Stop cancels any pending recomputation and rejects new ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Engine tracks live scroll state for one view and recomputes its window
// with frame-interval throttling. Resize updates recompute immediately;
// scroll updates coalesce through the scheduler.
type Engine struct {
	scheduler *Scheduler

	mu     sync.Mutex
	cfg    Config
	window Window
}

// NewEngine returns an engine for the given static dimensions. The
// container height and scroll offset start at zero and are fed in as the
// view reports them.
func NewEngine(itemHeight, headerHeight, overscan int) *Engine {
	e := &Engine{
		scheduler: NewScheduler(FrameInterval),
		cfg: Config{
			ItemHeight:   itemHeight,
			HeaderHeight: headerHeight,
			Overscan:     overscan,
		},
	}
	e.recompute()
	return e
}

// SetTotalItems updates the row count and recomputes immediately.
func (e *Engine) SetTotalItems(n int) {
	e.mu.Lock()
	e.cfg.TotalItems = n
	e.mu.Unlock()
	e.recompute()
}

// SetContainerHeight applies a resize observation and recomputes
// immediately.
func (e *Engine) SetContainerHeight(h int) {
	e.mu.Lock()
	e.cfg.ContainerHeight = h
	e.mu.Unlock()
	e.recompute()
}

// SetScrollTop applies a scroll observation. Recomputation is scheduled,
// not immediate; rapid successive calls collapse into one recompute with
// the newest offset.
func (e *Engine) SetScrollTop(offset int) {
	e.mu.Lock()
	e.cfg.ScrollTop = offset
	e.mu.Unlock()
	e.scheduler.Schedule(e.recompute)
}

// Window returns the last computed render window.
func (e *Engine) Window() Window {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window
}

// Close releases the engine's scheduler.
func (e *Engine) Close() {
	e.scheduler.Stop()
}

func (e *Engine) recompute() {
	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()

	window := Compute(cfg)

	e.mu.Lock()
	e.window = window
	e.mu.Unlock()
}
