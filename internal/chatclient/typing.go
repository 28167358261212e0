package chatclient

import (
	"sync"
	"time"
)

// DefaultTypingIdle is how long after the last keystroke typing stops.
const DefaultTypingIdle = 1000 * time.Millisecond

// Typing debounces keystrokes into typing indicators: one true when a burst
// starts and one false once no keystroke arrived for the idle period.
//
// State changes happen under mu; emit runs under sendMu only, so a slow
// connection never holds up keystrokes that do not change the state.
type Typing struct {
	idle time.Duration
	emit func(isTyping bool)

	mu     sync.Mutex
	active bool
	gen    uint64
	timer  *time.Timer

	sendMu sync.Mutex
	sent   bool
}

func NewTyping(idle time.Duration, emit func(isTyping bool)) *Typing {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &Typing{idle: idle, emit: emit}
}

func (t *Typing) Keystroke() {
	t.mu.Lock()
	started := !t.active
	t.active = true
	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.idle, func() { t.expire(gen) })
	t.mu.Unlock()

	if started {
		t.flush()
	}
}

func (t *Typing) expire(gen uint64) {
	t.mu.Lock()
	// A keystroke after this timer was armed owns the burst now.
	if gen != t.gen || !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.mu.Unlock()

	t.flush()
}

// flush emits the current state if it differs from the last one sent.
// Emits are serialized, so they leave in the order the state changed.
func (t *Typing) flush() {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.mu.Lock()
	want := t.active
	t.mu.Unlock()

	if want == t.sent {
		return
	}
	t.sent = want
	t.emit(want)
}

// Stop ends the current burst right away, emitting false if one was active.
func (t *Typing) Stop() {
	t.mu.Lock()
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
	}
	wasActive := t.active
	t.active = false
	t.mu.Unlock()

	if wasActive {
		t.flush()
	}
}

// Reset forgets the current burst without emitting anything.
func (t *Typing) Reset() {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.mu.Lock()
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
	}
	t.active = false
	t.mu.Unlock()

	t.sent = false
}
