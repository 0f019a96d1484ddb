package game

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequenceSpawner hands out kinds in a fixed, repeating order.
type sequenceSpawner struct {
	kinds []Kind
	next  int
}

func (s *sequenceSpawner) Next() Kind {
	k := s.kinds[s.next%len(s.kinds)]
	s.next++
	return k
}

func newTestEngine(t *testing.T, w, h int, kinds ...Kind) *Engine {
	t.Helper()
	e, err := NewEngine(EngineConfig{
		Width:   w,
		Height:  h,
		Spawner: &sequenceSpawner{kinds: kinds},
	})
	require.NoError(t, err)
	return e
}

func TestNewEngineRejectsBadDimensions(t *testing.T) {
	e, err := NewEngine(EngineConfig{Width: 0, Height: 20})

	assert.Nil(t, e)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestNewEngineDefaults(t *testing.T) {
	e, err := NewEngine(DefaultEngineConfig())
	require.NoError(t, err)

	assert.Equal(t, 10, e.Width())
	assert.Equal(t, 20, e.Height())
	assert.Equal(t, 0, e.Score())
	assert.Equal(t, 0, e.LinesCleared())
	assert.Equal(t, 1, e.Level())
	assert.Equal(t, 500*time.Millisecond, e.FallInterval())
	assert.False(t, e.IsGameOver())

	p, ok := e.Piece()
	require.True(t, ok)
	assert.True(t, p.Kind.Valid())
}

func TestSpawnIsCentred(t *testing.T) {
	tests := []struct {
		kind  Kind
		width int
		wantX int
	}{
		{KindI, 10, 3},
		{KindO, 10, 4},
		{KindT, 10, 4},
		{KindI, 9, 2},
		{KindT, 9, 3},
		{KindO, 7, 2},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			e := newTestEngine(t, tt.width, 20, tt.kind)

			p, ok := e.Piece()
			require.True(t, ok)
			assert.Equal(t, tt.kind, p.Kind)
			assert.Equal(t, tt.wantX, p.X)
			assert.Equal(t, 0, p.Y)
			assert.Equal(t, tt.kind.Shape(), p.Matrix)
		})
	}
}

func TestTryMoveZeroIsIdempotent(t *testing.T) {
	e := newTestEngine(t, 10, 20, KindT)
	before, _ := e.Piece()

	assert.True(t, e.TryMove(0, 0))

	after, _ := e.Piece()
	assert.Equal(t, before, after)
}

func TestTryMoveStopsAtWalls(t *testing.T) {
	e := newTestEngine(t, 10, 20, KindI)

	for i := 0; i < 3; i++ {
		require.True(t, e.MoveLeft())
	}
	assert.False(t, e.MoveLeft())
	p, _ := e.Piece()
	assert.Equal(t, 0, p.X)

	for i := 0; i < 6; i++ {
		require.True(t, e.MoveRight())
	}
	assert.False(t, e.MoveRight())
	p, _ = e.Piece()
	assert.Equal(t, 6, p.X)
}

func TestRotateRejectedAtWallKeepsState(t *testing.T) {
	e := newTestEngine(t, 10, 20, KindI)

	require.True(t, e.Rotate())
	for e.MoveRight() {
	}
	before, _ := e.Piece()
	require.Equal(t, 9, before.X)
	require.Equal(t, 4, before.Matrix.Rows())

	assert.False(t, e.Rotate())

	after, _ := e.Piece()
	assert.Equal(t, before, after)
}

func TestRotateReplacesMatrix(t *testing.T) {
	e := newTestEngine(t, 10, 20, KindT)
	e.TryMove(0, 2)

	require.True(t, e.Rotate())

	p, _ := e.Piece()
	assert.Equal(t, Matrix{{3, 0}, {3, 3}, {3, 0}}, p.Matrix)
	assert.Equal(t, 4, p.X)
	assert.Equal(t, 2, p.Y)
}

func TestTickMovesThenLocks(t *testing.T) {
	e := newTestEngine(t, 4, 4, KindO)

	assert.Equal(t, DropResult{Moved: true, Steps: 1}, e.Tick())
	assert.Equal(t, DropResult{Moved: true, Steps: 1}, e.Tick())

	res := e.Tick()
	assert.True(t, res.Locked)
	assert.False(t, res.Moved)
	assert.False(t, res.GameOver)
	assert.Equal(t, 0, res.LinesCleared)
	assert.Equal(t, KindO.Cell(), e.board.At(1, 2))
	assert.Equal(t, KindO.Cell(), e.board.At(2, 3))

	// A fresh piece was spawned at the top.
	p, ok := e.Piece()
	require.True(t, ok)
	assert.Equal(t, 0, p.Y)
}

func TestSoftDropMatchesTick(t *testing.T) {
	e := newTestEngine(t, 10, 20, KindO)

	res := e.SoftDrop()

	assert.True(t, res.Moved)
	p, _ := e.Piece()
	assert.Equal(t, 1, p.Y)
	assert.Equal(t, 0, e.Score())
}

func TestHardDropScoresTwoPerRow(t *testing.T) {
	e := newTestEngine(t, 10, 20, KindI, KindO)

	res := e.HardDrop()

	assert.True(t, res.Moved)
	assert.True(t, res.Locked)
	assert.Equal(t, 19, res.Steps)
	assert.Equal(t, 38, res.Points)
	assert.Zero(t, res.ClearPoints)
	assert.Equal(t, 38, e.Score())
	for x := 3; x <= 6; x++ {
		assert.Equal(t, KindI.Cell(), e.board.At(x, 19))
	}

	p, _ := e.Piece()
	assert.Equal(t, KindO, p.Kind)
}

func TestHardDropLeavesNoFloatingPiece(t *testing.T) {
	e := newTestEngine(t, 10, 20, KindT, KindS, KindZ, KindL, KindJ, KindI, KindO)

	for i := 0; i < 12 && !e.IsGameOver(); i++ {
		// Scatter pieces so they land on each other at different offsets.
		for j := 0; j < i%4; j++ {
			if i%2 == 0 {
				e.MoveLeft()
			} else {
				e.MoveRight()
			}
		}
		if i%3 == 0 {
			e.Rotate()
		}
		p, _ := e.Piece()
		before := e.board.Cells()

		res := e.HardDrop()

		restY := p.Y + res.Steps
		ref := &Board{width: e.Width(), height: e.Height(), cells: before}
		assert.False(t, ref.Collides(p.Matrix, p.X, restY), "drop %d should rest on a legal row", i)
		assert.True(t, ref.Collides(p.Matrix, p.X, restY+1), "drop %d should be supported", i)
	}
}

func TestLockClearsLinesAndScores(t *testing.T) {
	e := newTestEngine(t, 10, 20, KindI, KindO)
	fillRow(e.board, 19, 3, 4, 5, 6)

	res := e.HardDrop()

	assert.Equal(t, 1, res.LinesCleared)
	assert.Equal(t, 100+19*2, res.Points)
	assert.Equal(t, 100, res.ClearPoints, "drop bonus is not part of the clear award")
	assert.Equal(t, 138, e.Score())
	assert.Equal(t, 1, e.LinesCleared())
	for x := 0; x < 10; x++ {
		assert.Equal(t, CellEmpty, e.board.At(x, 19))
	}
}

func TestLevelAdvancesAfterTenLines(t *testing.T) {
	e := newTestEngine(t, 4, 20, KindI)
	e.score.lines = 9

	// I on a 4-wide board spans the whole row.
	res := e.HardDrop()

	assert.Equal(t, 1, res.LinesCleared)
	assert.Equal(t, 10, e.LinesCleared())
	assert.Equal(t, 2, e.Level())
	assert.Equal(t, 450*time.Millisecond, e.FallInterval())
}

// gameOverEngine leaves the engine one lock away from a blocked spawn: the
// top two rows are full except column 0 and the two columns under the O.
func gameOverEngine(t *testing.T) *Engine {
	t.Helper()
	e := newTestEngine(t, 10, 20, KindO, KindT)
	fillRow(e.board, 0, 0, 4, 5)
	fillRow(e.board, 1, 0, 4, 5)
	fillRow(e.board, 2, 0)
	return e
}

func TestSpawnCollisionEndsGame(t *testing.T) {
	e := gameOverEngine(t)

	res := e.Tick()

	assert.True(t, res.Locked)
	assert.Equal(t, 0, res.LinesCleared)
	assert.True(t, res.GameOver)
	assert.True(t, e.IsGameOver())

	p, _ := e.Piece()
	assert.True(t, e.board.Collides(p.Matrix, p.X, p.Y))
}

func TestGameOverIsTerminal(t *testing.T) {
	e := gameOverEngine(t)
	e.Tick()
	require.True(t, e.IsGameOver())
	snap := e.Snapshot()

	assert.False(t, e.MoveLeft())
	assert.False(t, e.MoveRight())
	assert.False(t, e.TryMove(0, 0))
	assert.False(t, e.Rotate())
	assert.Equal(t, DropResult{}, e.Tick())
	assert.Equal(t, DropResult{}, e.SoftDrop())
	assert.Equal(t, DropResult{}, e.HardDrop())
	assert.Equal(t, snap, e.Snapshot())
}

func TestRestartProducesFreshState(t *testing.T) {
	e := gameOverEngine(t)
	e.score.Apply(4)
	e.Tick()
	require.True(t, e.IsGameOver())

	e.Restart()

	assert.False(t, e.IsGameOver())
	assert.Equal(t, 0, e.Score())
	assert.Equal(t, 0, e.LinesCleared())
	assert.Equal(t, 1, e.Level())
	assert.Equal(t, InitialFallInterval, e.FallInterval())
	for _, row := range e.board.Cells() {
		for _, c := range row {
			assert.Equal(t, CellEmpty, c)
		}
	}
	p, ok := e.Piece()
	require.True(t, ok)
	assert.Equal(t, 0, p.Y)
	assert.True(t, e.MoveLeft())
}

func TestGameEventuallyEndsWithoutClears(t *testing.T) {
	e, err := NewEngine(EngineConfig{Width: 10, Height: 20, Spawner: NewRandomSpawner(42)})
	require.NoError(t, err)

	var over bool
	for i := 0; i < 200 && !over; i++ {
		over = e.HardDrop().GameOver
	}

	assert.True(t, over)
	assert.True(t, e.IsGameOver())
}

func TestSnapshotIsIsolated(t *testing.T) {
	e := newTestEngine(t, 10, 20, KindT)
	e.board.cells[19][0] = KindZ.Cell()

	snap := e.Snapshot()
	snap.Cells[19][0] = CellEmpty
	snap.Piece.Matrix[0][1] = CellEmpty

	assert.Equal(t, KindZ.Cell(), e.board.At(0, 19))
	p, _ := e.Piece()
	assert.Equal(t, Cell(3), p.Matrix[0][1])
}

func TestSnapshotFields(t *testing.T) {
	e := newTestEngine(t, 10, 20, KindT)

	snap := e.Snapshot()

	assert.Equal(t, 10, snap.Width)
	assert.Equal(t, 20, snap.Height)
	assert.Len(t, snap.Cells, 20)
	require.NotNil(t, snap.Piece)
	assert.Equal(t, "T", snap.Piece.Kind)
	assert.Equal(t, 4, snap.Piece.X)
	assert.Equal(t, 500, snap.FallIntervalMs)
	assert.Equal(t, 1, snap.Level)

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	rows, ok := decoded["cells"].([]any)
	require.True(t, ok, "cells should encode as nested arrays")
	assert.Len(t, rows, 20)
}

func TestSnapshotComposite(t *testing.T) {
	e := newTestEngine(t, 10, 20, KindO)

	grid := e.Snapshot().Composite()

	assert.Equal(t, KindO.Cell(), grid[0][4])
	assert.Equal(t, KindO.Cell(), grid[1][5])
	assert.Equal(t, CellEmpty, grid[2][4])
	assert.Equal(t, CellEmpty, e.board.At(4, 0))
}

func TestRandomSpawnerIsReplayable(t *testing.T) {
	a := NewRandomSpawner(7)
	b := NewRandomSpawner(7)

	seen := make(map[Kind]bool)
	for i := 0; i < 200; i++ {
		k := a.Next()
		assert.Equal(t, k, b.Next())
		assert.True(t, k.Valid())
		seen[k] = true
	}

	assert.Len(t, seen, len(Kinds))
	assert.Equal(t, int64(7), a.Seed())
}
