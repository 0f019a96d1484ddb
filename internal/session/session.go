// Package session drives game engines in real time.
//
// A Session owns one engine and is its only writer: player commands and the
// gravity timer both go through the session mutex. Every state change is
// published as an Update after the lock is released.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"blockfall/internal/audio"
	"blockfall/internal/game"
	"blockfall/internal/highscore"
	"blockfall/internal/input"
)

var (
	ErrGameNotOver       = errors.New("game is still in progress")
	ErrAlreadySubmitted  = errors.New("score already submitted for this game")
	ErrHighScoresOffline = errors.New("high scores are not available")
)

// Update is what one command or gravity step did to a session.
type Update struct {
	SessionID string        `json:"sessionId"`
	Sequence  uint64        `json:"sequence"`
	Outcome   input.Outcome `json:"outcome"`
	Cues      []audio.Cue   `json:"cues"`
	Snapshot  game.Snapshot `json:"snapshot"`
	Elapsed   time.Duration `json:"-"` // time spent inside the engine
}

// Changed reports whether the update is worth broadcasting.
func (u Update) Changed() bool {
	return u.Outcome.Playing || u.Outcome.Restarted
}

// Session is one live game.
type Session struct {
	id        string
	seed      int64
	createdAt time.Time

	scores  *highscore.Service
	events  *EventLog
	publish func(Update)

	// pubMu is held from the sequence bump through the publish call so
	// updates reach OnUpdate in sequence order.
	pubMu sync.Mutex

	mu         sync.Mutex
	engine     *game.Engine
	sequence   uint64
	generation uint64 // bumped on restart
	submitted  bool

	lastActive atomic.Int64 // unix nanos of the last player action or game end

	loopMu sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	wake   chan struct{} // restart signal for a parked gravity loop
	parked atomic.Bool
}

// Config assembles a Session.
type Config struct {
	ID         string
	Seed       int64
	Width      int
	Height     int
	HighScores *highscore.Service // optional
	Events     *EventLog          // optional
	OnUpdate   func(Update)       // optional, called outside the lock
}

// New creates a session and spawns its first piece. Gravity is not running
// until Start is called.
func New(cfg Config) (*Session, error) {
	engine, err := game.NewEngine(game.EngineConfig{
		Width:   cfg.Width,
		Height:  cfg.Height,
		Spawner: game.NewRandomSpawner(cfg.Seed),
	})
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}

	s := &Session{
		id:        cfg.ID,
		seed:      cfg.Seed,
		createdAt: time.Now(),
		scores:    cfg.HighScores,
		events:    cfg.Events,
		publish:   cfg.OnUpdate,
		engine:    engine,
		wake:      make(chan struct{}, 1),
	}
	s.touch()

	s.emit(EventTypeSessionStart, StartPayload{Seed: cfg.Seed, Width: engine.Width(), Height: engine.Height()})
	return s, nil
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Seed() int64          { return s.seed }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastActive is the time of the last player command, score submission or
// game end. Gravity ticks do not count.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// Apply runs one player command.
func (s *Session) Apply(cmd input.Command) Update {
	s.touch()
	return s.run(func(e *game.Engine) input.Outcome {
		return input.Apply(e, cmd)
	})
}

// Step runs one gravity tick.
func (s *Session) Step() Update {
	return s.run(input.Gravity)
}

func (s *Session) run(fn func(*game.Engine) input.Outcome) Update {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	start := time.Now()
	var piece game.ActivePiece
	if p, ok := s.engine.Piece(); ok {
		piece = p
	}

	out := fn(s.engine)
	elapsed := time.Since(start)

	if out.Restarted {
		s.generation++
		s.submitted = false
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	if out.Drop.GameOver {
		s.touch()
	}
	s.sequence++
	u := Update{
		SessionID: s.id,
		Sequence:  s.sequence,
		Outcome:   out,
		Cues:      audio.CuesFor(out),
		Snapshot:  s.engine.Snapshot(),
		Elapsed:   elapsed,
	}
	s.mu.Unlock()

	s.logOutcome(out, piece, u.Snapshot)
	if s.publish != nil && u.Changed() {
		s.publish(u)
	}
	return u
}

// logOutcome records lock, clear, game-over and restart events.
func (s *Session) logOutcome(out input.Outcome, piece game.ActivePiece, snap game.Snapshot) {
	if out.Restarted {
		s.emit(EventTypeRestart, nil)
		return
	}
	if !out.Drop.Locked {
		return
	}

	// Hard drop moves the piece before locking it.
	y := piece.Y
	if out.Command == input.CmdHardDrop {
		y += out.Drop.Steps
	}
	s.emit(EventTypeLock, LockPayload{
		Kind:  piece.Kind.String(),
		X:     piece.X,
		Y:     y,
		Steps: out.Drop.Steps,
		Score: snap.Score,
	})
	if out.Drop.LinesCleared > 0 {
		s.emit(EventTypeLineClear, LineClearPayload{
			Lines:      out.Drop.LinesCleared,
			Points:     out.Drop.ClearPoints,
			TotalLines: snap.Lines,
			Level:      snap.Level,
		})
	}
	if out.Drop.GameOver {
		s.emit(EventTypeGameOver, GameOverPayload{Score: snap.Score, Lines: snap.Lines, Level: snap.Level})
	}
}

func (s *Session) emit(t EventType, payload any) {
	if s.events != nil {
		s.events.EmitSimple(t, s.id, payload)
	}
}

// Snapshot returns a copy of the current game state.
func (s *Session) Snapshot() game.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshot()
}

// GameOver reports whether the current game has ended.
func (s *Session) GameOver() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.IsGameOver()
}

// FallInterval returns the current gravity period.
func (s *Session) FallInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.FallInterval()
}

// Start runs the gravity loop until Stop. Calling Start twice is a no-op.
func (s *Session) Start() {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.gravityLoop(s.stop, s.done)
}

// Stop halts the gravity loop and waits for it to exit.
func (s *Session) Stop() {
	s.loopMu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.loopMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Running reports whether the gravity loop is active.
func (s *Session) Running() bool {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	return s.stop != nil
}

// gravityLoop ticks at the engine's current fall interval, re-reading it
// after every tick so level changes take effect immediately. Once the game
// is over the loop parks until a restart wakes it.
func (s *Session) gravityLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer s.parked.Store(false)

	timer := time.NewTimer(s.FallInterval())
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
		}

		if u := s.Step(); u.Snapshot.GameOver {
			s.parked.Store(true)
			select {
			case <-stop:
				return
			case <-s.wake:
			}
			s.parked.Store(false)
		}
		timer.Reset(s.FallInterval())
	}
}

// Parked reports whether the gravity loop is waiting for a restart.
func (s *Session) Parked() bool {
	return s.parked.Load()
}

// SubmitScore enters the final score of a finished game into the high-score
// list. Each game may be submitted once; a failed submission can be retried.
func (s *Session) SubmitScore(ctx context.Context, name string) (int, error) {
	if s.scores == nil {
		return 0, ErrHighScoresOffline
	}

	s.mu.Lock()
	if !s.engine.IsGameOver() {
		s.mu.Unlock()
		return 0, ErrGameNotOver
	}
	if s.submitted {
		s.mu.Unlock()
		return 0, ErrAlreadySubmitted
	}
	s.submitted = true
	s.touch()
	gen := s.generation
	score := s.engine.Score()
	s.mu.Unlock()

	rank, err := s.scores.Submit(ctx, name, score)
	if err != nil {
		s.mu.Lock()
		if s.generation == gen {
			s.submitted = false
		}
		s.mu.Unlock()
		return 0, err
	}

	s.emit(EventTypeScoreSubmitted, ScorePayload{Name: name, Score: score, Rank: rank})
	return rank, nil
}

// Qualifies reports whether the finished game's score would enter the
// high-score list. It is false while playing and after a submission.
func (s *Session) Qualifies(ctx context.Context) (bool, error) {
	if s.scores == nil {
		return false, ErrHighScoresOffline
	}

	s.mu.Lock()
	over, submitted, score := s.engine.IsGameOver(), s.submitted, s.engine.Score()
	s.mu.Unlock()

	if !over || submitted {
		return false, nil
	}
	return s.scores.Qualifies(ctx, score)
}
