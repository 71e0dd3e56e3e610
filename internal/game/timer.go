package game

import (
	"sync"
	"time"
)

// Timer measures how long the human has been playing. It is started once per
// game, frozen on the terminal transition and only zeroed by Reset.
type Timer struct {
	mu        sync.Mutex
	now       func() time.Time
	started   bool
	running   bool
	startedAt time.Time
	base      time.Duration
	frozen    time.Duration

	tickEvery time.Duration
	onTick    func(elapsed int)
	stopTick  chan struct{}
}

func NewTimer(now func() time.Time) *Timer {
	if now == nil {
		now = time.Now
	}
	return &Timer{now: now}
}

// OnTick registers fn to be called every interval while the timer runs.
// Must be set before Start. fn runs with the timer locked and must not call
// back into it.
func (t *Timer) OnTick(interval time.Duration, fn func(elapsed int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tickEvery = interval
	t.onTick = fn
}

// Start begins counting. It reports false when the timer has already been
// started in this game, including after Stop.
func (t *Timer) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return false
	}
	t.started = true
	t.resumeLocked()
	return true
}

func (t *Timer) resumeLocked() {
	t.running = true
	t.startedAt = t.now()
	if t.tickEvery > 0 && t.onTick != nil {
		t.stopTick = make(chan struct{})
		go t.tickLoop(t.tickEvery, t.onTick, t.stopTick)
	}
}

func (t *Timer) tickLoop(every time.Duration, fn func(int), stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !t.tick(fn, stop) {
				return
			}
		}
	}
}

// tick delivers one reading unless the loop was halted after the ticker fired.
func (t *Timer) tick(fn func(int), stop <-chan struct{}) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-stop:
		return false
	default:
	}
	if !t.running {
		return false
	}
	fn(t.elapsedLocked())
	return true
}

func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.frozen = t.base + t.now().Sub(t.startedAt)
	t.running = false
	t.haltTickLocked()
}

func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.haltTickLocked()
	t.started = false
	t.running = false
	t.base = 0
	t.frozen = 0
	t.startedAt = time.Time{}
}

// Restore puts the timer back into a previously persisted state.
func (t *Timer) Restore(elapsed int, running bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.haltTickLocked()
	if elapsed < 0 {
		elapsed = 0
	}
	d := time.Duration(elapsed) * time.Second
	t.base = d
	t.frozen = d
	t.running = false
	t.started = elapsed > 0 || running
	if running {
		t.resumeLocked()
	}
}

// Elapsed returns whole seconds.
func (t *Timer) Elapsed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsedLocked()
}

func (t *Timer) elapsedLocked() int {
	d := t.frozen
	if t.running {
		d = t.base + t.now().Sub(t.startedAt)
	}
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Timer) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// Close stops the tick goroutine without freezing the reading.
func (t *Timer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.haltTickLocked()
}

func (t *Timer) haltTickLocked() {
	if t.stopTick != nil {
		close(t.stopTick)
		t.stopTick = nil
	}
}
