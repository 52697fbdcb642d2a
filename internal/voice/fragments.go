package voice

import (
	"strings"
	"sync"
	"time"
)

const DefaultQuietInterval = 1800 * time.Millisecond

// FragmentAccumulator collects recognizer fragments for the turn in progress
// and owns the silence watchdog that finalizes them. Partial fragments only
// mark speech liveness (and feed live captions); final fragments are buffered
// in arrival order. Any fragment reschedules the watchdog, so the quiet
// interval is a debounce measured from the most recent fragment.
//
// All buffer mutation and watchdog cancel/reschedule happens under one mutex,
// and each reschedule bumps a generation counter that the pending timer
// re-checks before firing. When a fragment races the timer, exactly one side
// wins: either the fragment is observed first and the stale timer aborts, or
// finalization completes using only fragments buffered before the firing
// decision.
type FragmentAccumulator struct {
	mu             sync.Mutex
	quiet          time.Duration
	finals         []string
	lastFragmentAt time.Time
	timer          *time.Timer
	gen            uint64
	stopped        bool

	onFinalize func(text string)
	onPartial  func(text string)
}

// NewFragmentAccumulator builds an accumulator that calls onFinalize with the
// joined utterance text after quiet elapses with no new fragments. onFinalize
// runs with the accumulator lock held, so buffer clearing is atomic with
// whatever the callback commits. onPartial may be nil.
func NewFragmentAccumulator(quiet time.Duration, onFinalize func(text string), onPartial func(text string)) *FragmentAccumulator {
	if quiet <= 0 {
		quiet = DefaultQuietInterval
	}
	return &FragmentAccumulator{
		quiet:      quiet,
		onFinalize: onFinalize,
		onPartial:  onPartial,
	}
}

// Observe records one recognizer fragment and restarts the watchdog.
func (f *FragmentAccumulator) Observe(frag Fragment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}

	f.lastFragmentAt = time.Now()
	text := strings.TrimSpace(frag.Text)
	if frag.Final {
		if text != "" {
			f.finals = append(f.finals, text)
		}
	} else if text != "" && f.onPartial != nil {
		f.onPartial(text)
	}

	f.rescheduleLocked()
}

func (f *FragmentAccumulator) rescheduleLocked() {
	f.gen++
	gen := f.gen
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.quiet, func() {
		f.fire(gen)
	})
}

func (f *FragmentAccumulator) fire(gen uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped || gen != f.gen {
		// A newer fragment rescheduled (or Stop cancelled) after this timer
		// was armed; this firing is stale.
		return
	}
	f.timer = nil

	text := strings.TrimSpace(strings.Join(f.finals, " "))
	f.finals = nil
	if text == "" {
		// Silence after partial-only (or no) speech is not a turn.
		return
	}
	f.onFinalize(text)
}

// LastFragmentAt reports when speech activity was last observed.
func (f *FragmentAccumulator) LastFragmentAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFragmentAt
}

// BufferedFinals reports how many final fragments await finalization.
func (f *FragmentAccumulator) BufferedFinals() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.finals)
}

// Stop cancels any pending watchdog and discards buffered fragments. The
// accumulator ignores fragments after Stop.
func (f *FragmentAccumulator) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	f.gen++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.finals = nil
}
