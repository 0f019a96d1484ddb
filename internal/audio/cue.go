// Package audio decides which sound cue follows an engine outcome.
//
// Nothing here produces sound. Cues carry a tone description that a client
// (browser, desktop shell) can synthesize; Sink implementations receive them.
package audio

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"blockfall/internal/input"
)

// Cue names a sound event.
type Cue string

const (
	CueMove      Cue = "move"
	CueRotate    Cue = "rotate"
	CueDrop      Cue = "drop"
	CueLineClear Cue = "lineClear"
	CueGameOver  Cue = "gameOver"
)

// Tone describes a square-wave chord: every frequency starts together and
// decays over Duration.
type Tone struct {
	Frequencies []float64     `json:"frequencies"`
	Duration    time.Duration `json:"durationNs"`
}

// Tones is the cue table clients synthesize from
var Tones = map[Cue]Tone{
	CueMove:      {Frequencies: []float64{300}, Duration: 30 * time.Millisecond},
	CueRotate:    {Frequencies: []float64{400}, Duration: 50 * time.Millisecond},
	CueDrop:      {Frequencies: []float64{200}, Duration: 100 * time.Millisecond},
	CueLineClear: {Frequencies: []float64{800, 1000, 1200}, Duration: 300 * time.Millisecond},
	CueGameOver:  {Frequencies: []float64{400, 300, 200, 100}, Duration: time.Second},
}

// Tone returns the tone for this cue.
func (c Cue) Tone() (Tone, bool) {
	t, ok := Tones[c]
	return t, ok
}

// CuesFor lists the cues an outcome should trigger, in play order.
//
// Rotate sounds on every rotate request made while playing, accepted or not.
// Moves sound only when the piece actually moved.
func CuesFor(out input.Outcome) []Cue {
	if !out.Playing {
		return nil
	}

	var cues []Cue
	switch out.Command {
	case input.CmdMoveLeft, input.CmdMoveRight:
		if out.Accepted {
			cues = append(cues, CueMove)
		}
	case input.CmdRotate:
		cues = append(cues, CueRotate)
	}

	if out.Drop.Locked {
		cues = append(cues, CueDrop)
	}
	if out.Drop.LinesCleared > 0 {
		cues = append(cues, CueLineClear)
	}
	if out.Drop.GameOver {
		cues = append(cues, CueGameOver)
	}
	return cues
}

// Sink receives cues to play.
type Sink interface {
	Play(cue Cue)
}

// NopSink discards cues.
type NopSink struct{}

func (NopSink) Play(Cue) {}

// LogSink writes each cue to the standard logger. Useful for headless drivers.
type LogSink struct {
	Prefix string
}

func (s LogSink) Play(cue Cue) {
	log.Printf("%s🔊 %s", s.Prefix, cue)
}

// Recorder keeps every cue it receives
type Recorder struct {
	mu   sync.Mutex
	cues []Cue
}

func (r *Recorder) Play(cue Cue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cues = append(r.cues, cue)
}

// Cues returns a copy of the recorded cues.
func (r *Recorder) Cues() []Cue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Cue(nil), r.cues...)
}

// Switch forwards cues to another sink while enabled.
type Switch struct {
	sink  Sink
	muted atomic.Bool
}

// NewSwitch wraps sink, enabled.
func NewSwitch(sink Sink) *Switch {
	return &Switch{sink: sink}
}

func (s *Switch) Play(cue Cue) {
	if !s.muted.Load() {
		s.sink.Play(cue)
	}
}

// SetEnabled turns sound on or off.
func (s *Switch) SetEnabled(on bool) { s.muted.Store(!on) }

// Enabled reports whether cues are forwarded.
func (s *Switch) Enabled() bool { return !s.muted.Load() }

// Toggle flips the switch and returns the new enabled state.
func (s *Switch) Toggle() bool {
	for {
		muted := s.muted.Load()
		if s.muted.CompareAndSwap(muted, !muted) {
			return muted
		}
	}
}

// PlayAll sends cues to the sink in order.
func PlayAll(sink Sink, cues []Cue) {
	for _, c := range cues {
		sink.Play(c)
	}
}
