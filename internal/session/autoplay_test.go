package session

import (
	"bytes"
	"math/rand"
	"testing"

	"blockfall/internal/audio"
	"blockfall/internal/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoPlayRunsToGameOver(t *testing.T) {
	rec := &audio.Recorder{}
	var out bytes.Buffer

	res, err := AutoPlay(&out, rand.New(rand.NewSource(1)), AutoPlayConfig{
		Seed:      7,
		Width:     6,
		Height:    6,
		MaxMoves:  20000,
		TickEvery: 2,
		Sink:      rec,
	})
	require.NoError(t, err)

	assert.True(t, res.GameOver)
	assert.Positive(t, res.Locks)
	assert.Contains(t, out.String(), "=== Game Over ===")
	assert.NotContains(t, out.String(), "AutoPlay ===", "banner only when verbose")

	cues := rec.Cues()
	require.NotEmpty(t, cues)
	assert.Equal(t, audio.CueGameOver, cues[len(cues)-1])
	assert.Contains(t, cues, audio.CueDrop)
}

func TestAutoPlayIsDeterministic(t *testing.T) {
	cfg := AutoPlayConfig{Seed: 99, Width: 8, Height: 10, MaxMoves: 500, TickEvery: 3}

	var a, b bytes.Buffer
	first, err := AutoPlay(&a, rand.New(rand.NewSource(5)), cfg)
	require.NoError(t, err)
	second, err := AutoPlay(&b, rand.New(rand.NewSource(5)), cfg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, a.String(), b.String())
}

func TestAutoPlayMoveLimit(t *testing.T) {
	var out bytes.Buffer
	res, err := AutoPlay(&out, rand.New(rand.NewSource(3)), AutoPlayConfig{
		Seed:     1,
		Width:    game.DefaultWidth,
		Height:   game.DefaultHeight,
		MaxMoves: 3,
		Verbose:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Moves)
	assert.False(t, res.GameOver)
	assert.Contains(t, out.String(), "=== Blockfall AutoPlay ===")
	assert.Contains(t, out.String(), "=== Move Limit Reached ===")
}

func TestAutoPlayInvalidBoard(t *testing.T) {
	_, err := AutoPlay(&bytes.Buffer{}, rand.New(rand.NewSource(1)), AutoPlayConfig{Width: 0, Height: 20})
	assert.ErrorIs(t, err, game.ErrInvalidDimensions)
}

func TestRenderBoard(t *testing.T) {
	snap := game.Snapshot{
		Width:  2,
		Height: 2,
		Cells:  [][]game.Cell{{0, 1}, {3, 0}},
	}
	assert.Equal(t, "+--+\n|.I|\n|T.|\n+--+\n", RenderBoard(snap))

	snap.Piece = &game.PieceSnapshot{Kind: "O", Matrix: game.Matrix{{2}}, X: 0, Y: 0}
	assert.Equal(t, "+--+\n|OI|\n|T.|\n+--+\n", RenderBoard(snap))
}
