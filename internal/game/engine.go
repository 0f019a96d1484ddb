package game

import (
	"fmt"
	"time"
)

// Default playfield size, matching the classic 10x20 well.
const (
	DefaultWidth  = 10
	DefaultHeight = 20
)

// EngineConfig holds construction parameters for an Engine.
type EngineConfig struct {
	Width   int
	Height  int
	Spawner Spawner // nil uses a time-seeded RandomSpawner
}

// DefaultEngineConfig returns a 10x20 board with a random spawner.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Width:  DefaultWidth,
		Height: DefaultHeight,
	}
}

// DropResult reports what a gravity step, soft drop or hard drop did.
type DropResult struct {
	Moved        bool `json:"moved"`        // piece moved down at least one row
	Steps        int  `json:"steps"`        // rows travelled
	Locked       bool `json:"locked"`       // piece was committed to the board
	LinesCleared int  `json:"linesCleared"` // rows removed by this lock
	Points       int  `json:"points"`       // score gained by this call
	ClearPoints  int  `json:"clearPoints"`  // part of Points awarded for cleared rows
	GameOver     bool `json:"gameOver"`     // this call ended the game
}

// Engine is the game-state machine: board, active piece, spawner and score.
//
// It performs no I/O and holds no locks. Callers serialize access; the engine
// assumes a single owner.
type Engine struct {
	board    *Board
	piece    ActivePiece
	hasPiece bool
	spawner  Spawner
	score    ScoreTracker
	gameOver bool
}

// NewEngine builds an engine and spawns the first piece. Non-positive board
// dimensions are a configuration error.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	board, err := NewBoard(cfg.Width, cfg.Height)
	if err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}

	spawner := cfg.Spawner
	if spawner == nil {
		spawner = NewRandomSpawner(0)
	}

	e := &Engine{
		board:   board,
		spawner: spawner,
		score:   NewScoreTracker(),
	}
	e.spawn()
	return e, nil
}

// TryMove shifts the piece by (dx, dy). Returns false and leaves state
// unchanged if the target collides or the game is over.
func (e *Engine) TryMove(dx, dy int) bool {
	if e.gameOver || !e.hasPiece {
		return false
	}

	next := e.piece.moved(dx, dy)
	if e.board.Collides(next.Matrix, next.X, next.Y) {
		return false
	}
	e.piece = next
	return true
}

// MoveLeft shifts the piece one column left.
func (e *Engine) MoveLeft() bool { return e.TryMove(-1, 0) }

// MoveRight shifts the piece one column right.
func (e *Engine) MoveRight() bool { return e.TryMove(1, 0) }

// Rotate turns the piece 90 degrees in place. A rotation that would collide
// is rejected and the piece keeps its matrix and position.
func (e *Engine) Rotate() bool {
	if e.gameOver || !e.hasPiece {
		return false
	}

	rotated := Rotate(e.piece.Matrix)
	if e.board.Collides(rotated, e.piece.X, e.piece.Y) {
		return false
	}
	e.piece = ActivePiece{
		Kind:   e.piece.Kind,
		Matrix: rotated,
		X:      e.piece.X,
		Y:      e.piece.Y,
	}
	return true
}

// Tick applies one gravity step: move down, or lock when blocked.
func (e *Engine) Tick() DropResult {
	if e.gameOver || !e.hasPiece {
		return DropResult{}
	}

	if e.TryMove(0, 1) {
		return DropResult{Moved: true, Steps: 1}
	}
	return e.lock(DropResult{})
}

// SoftDrop is a player-requested gravity step.
func (e *Engine) SoftDrop() DropResult {
	return e.Tick()
}

// HardDrop moves the piece to its lowest legal row, earning two points per
// row, then locks it.
func (e *Engine) HardDrop() DropResult {
	if e.gameOver || !e.hasPiece {
		return DropResult{}
	}

	var res DropResult
	for e.TryMove(0, 1) {
		res.Steps++
	}
	res.Moved = res.Steps > 0
	res.Points = e.score.AddDropBonus(res.Steps)
	return e.lock(res)
}

// lock commits the piece, clears rows, scores and spawns the next piece.
func (e *Engine) lock(res DropResult) DropResult {
	e.board.Place(e.piece.Matrix, e.piece.X, e.piece.Y)
	e.hasPiece = false
	res.Locked = true

	res.LinesCleared = e.board.ClearLines()
	res.ClearPoints = e.score.Apply(res.LinesCleared)
	res.Points += res.ClearPoints

	e.spawn()
	res.GameOver = e.gameOver
	return res
}

// spawn places a new piece horizontally centred at the top. A piece that
// collides on arrival ends the game.
func (e *Engine) spawn() {
	kind := e.spawner.Next()
	shape := kind.Shape()

	e.piece = ActivePiece{
		Kind:   kind,
		Matrix: shape,
		X:      e.board.Width()/2 - shape.Cols()/2,
		Y:      0,
	}
	e.hasPiece = true

	if e.board.Collides(e.piece.Matrix, e.piece.X, e.piece.Y) {
		e.gameOver = true
	}
}

// Restart resets board, score and game-over flag and spawns a fresh piece.
// The spawner is kept, so a seeded sequence continues.
func (e *Engine) Restart() {
	e.board.Reset()
	e.score.Reset()
	e.gameOver = false
	e.hasPiece = false
	e.spawn()
}

// Piece returns the active piece. The matrix must be treated as read-only.
func (e *Engine) Piece() (ActivePiece, bool) {
	return e.piece, e.hasPiece
}

func (e *Engine) Width() int                  { return e.board.Width() }
func (e *Engine) Height() int                 { return e.board.Height() }
func (e *Engine) Score() int                  { return e.score.Score() }
func (e *Engine) LinesCleared() int           { return e.score.Lines() }
func (e *Engine) Level() int                  { return e.score.Level() }
func (e *Engine) FallInterval() time.Duration { return e.score.FallInterval() }
func (e *Engine) IsGameOver() bool            { return e.gameOver }
