package orchestration

import (
	"sync"
	"time"

	"github.com/koscakluka/ema-companion/core/audio"
)

// DefaultPlaybackLookahead is how early a unit's audio is handed to the
// device before its scheduled start.
const DefaultPlaybackLookahead = 50 * time.Millisecond

// AudioUnit is one decoded chunk of speech, played in Index order.
type AudioUnit struct {
	Index  int
	Buffer audio.Buffer
}

func (u AudioUnit) Duration() time.Duration {
	return u.Buffer.Duration()
}

type PlaybackOption func(*PlaybackScheduler)

func WithClock(clock Clock) PlaybackOption {
	return func(s *PlaybackScheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithLookahead(lookahead time.Duration) PlaybackOption {
	return func(s *PlaybackScheduler) {
		if lookahead >= 0 {
			s.lookahead = lookahead
		}
	}
}

// WithUnitStartedCallback is called when a unit reaches its start offset.
func WithUnitStartedCallback(onUnitStarted func(AudioUnit)) PlaybackOption {
	return func(s *PlaybackScheduler) {
		s.onUnitStarted = onUnitStarted
	}
}

// PlaybackScheduler plays audio units back to back on one output. Only one
// playback is active at a time.
type PlaybackScheduler struct {
	output        AudioOutput
	clock         Clock
	lookahead     time.Duration
	onUnitStarted func(AudioUnit)

	mu     sync.Mutex
	active *PlaybackHandle
}

func NewPlaybackScheduler(output AudioOutput, opts ...PlaybackOption) *PlaybackScheduler {
	s := &PlaybackScheduler{
		output:        output,
		clock:         systemClock{},
		lookahead:     DefaultPlaybackLookahead,
		onUnitStarted: func(AudioUnit) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.onUnitStarted == nil {
		s.onUnitStarted = func(AudioUnit) {}
	}
	return s
}

// PlaybackHandle controls one scheduled playback.
type PlaybackHandle struct {
	scheduler  *PlaybackScheduler
	units      []AudioUnit
	offsets    []time.Duration
	total      time.Duration
	onComplete func()

	// guarded by scheduler.mu
	timers   []Timer
	stopped  bool
	finished bool
	sent     int
	started  int

	done chan struct{}
}

// Play schedules units so that unit i starts at the sum of the durations of
// the units before it. A playback that is still running is stopped first.
// onComplete is called once, only if the last unit plays to its end.
func (s *PlaybackScheduler) Play(units []AudioUnit, onComplete func()) *PlaybackHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		s.stopLocked(s.active)
	}

	if onComplete == nil {
		onComplete = func() {}
	}
	h := &PlaybackHandle{
		scheduler:  s,
		units:      units,
		offsets:    make([]time.Duration, len(units)),
		onComplete: onComplete,
		done:       make(chan struct{}),
	}

	var offset time.Duration
	for i, unit := range units {
		h.offsets[i] = offset
		offset += unit.Duration()
	}
	h.total = offset

	for i := range units {
		sendAt := max(h.offsets[i]-s.lookahead, 0)
		h.timers = append(h.timers,
			s.clock.AfterFunc(sendAt, func() { s.sendUnit(h, i) }),
			s.clock.AfterFunc(h.offsets[i], func() { s.startUnit(h, i) }),
		)
	}
	h.timers = append(h.timers, s.clock.AfterFunc(h.total, func() { s.complete(h) }))

	s.active = h
	return h
}

// Stop halts the handle. Stopping a handle that already stopped or finished
// does nothing.
func (s *PlaybackScheduler) Stop(h *PlaybackHandle) {
	if h == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(h)
}

func (s *PlaybackScheduler) stopLocked(h *PlaybackHandle) {
	if h.stopped || h.finished {
		return
	}

	h.stopped = true
	for _, timer := range h.timers {
		timer.Stop()
	}
	h.timers = nil
	if s.active == h {
		s.active = nil
	}
	if !isNilAudioOutput(s.output) {
		s.output.ClearBuffer()
	}
	close(h.done)
}

// sendUnit hands every unit up to and including i to the output, so units
// reach the device in order even when their timers fire together.
func (s *PlaybackScheduler) sendUnit(h *PlaybackHandle, i int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.stopped || h.finished || isNilAudioOutput(s.output) {
		return
	}
	for ; h.sent <= i; h.sent++ {
		unit := h.units[h.sent]
		if err := s.output.SendAudio(unit.Buffer.PCM16()); err != nil {
			logger.Warn("failed to send audio unit to output", "unit", unit.Index, "error", err)
		}
	}
}

func (s *PlaybackScheduler) startUnit(h *PlaybackHandle, i int) {
	s.mu.Lock()
	if h.stopped || h.finished {
		s.mu.Unlock()
		return
	}
	h.started = i + 1
	s.mu.Unlock()

	s.onUnitStarted(h.units[i])
}

func (s *PlaybackScheduler) complete(h *PlaybackHandle) {
	s.mu.Lock()
	if h.stopped || h.finished {
		s.mu.Unlock()
		return
	}
	h.finished = true
	h.timers = nil
	if s.active == h {
		s.active = nil
	}
	close(h.done)
	s.mu.Unlock()

	h.onComplete()
}

func (h *PlaybackHandle) Stop() {
	if h == nil {
		return
	}
	h.scheduler.Stop(h)
}

// Done is closed when the playback finishes or is stopped.
func (h *PlaybackHandle) Done() <-chan struct{} {
	return h.done
}

// Offsets returns the start offset of every unit.
func (h *PlaybackHandle) Offsets() []time.Duration {
	return append([]time.Duration(nil), h.offsets...)
}

func (h *PlaybackHandle) Duration() time.Duration {
	return h.total
}

// Finished reports whether the playback ended naturally.
func (h *PlaybackHandle) Finished() bool {
	h.scheduler.mu.Lock()
	defer h.scheduler.mu.Unlock()
	return h.finished
}

// Started returns how many units have reached their start offset.
func (h *PlaybackHandle) Started() int {
	h.scheduler.mu.Lock()
	defer h.scheduler.mu.Unlock()
	return h.started
}
