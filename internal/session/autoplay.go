package session

import (
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"blockfall/internal/audio"
	"blockfall/internal/game"
	"blockfall/internal/input"
)

// AutoPlayConfig configures a headless run.
type AutoPlayConfig struct {
	Seed      int64
	Width     int
	Height    int
	MaxMoves  int
	TickEvery int // gravity tick after this many player commands
	Delay     time.Duration
	Sink      audio.Sink
	Verbose   bool
}

// DefaultAutoPlayConfig returns a standard-board run capped at 10k moves.
func DefaultAutoPlayConfig() AutoPlayConfig {
	return AutoPlayConfig{
		Seed:      time.Now().UnixNano(),
		Width:     game.DefaultWidth,
		Height:    game.DefaultHeight,
		MaxMoves:  10000,
		TickEvery: 3,
		Sink:      audio.NopSink{},
	}
}

// AutoPlayResult summarises a finished run.
type AutoPlayResult struct {
	Score    int
	Lines    int
	Level    int
	Moves    int
	Locks    int
	GameOver bool
}

// autoPlayMoves is weighted toward lateral movement so pieces spread out.
var autoPlayMoves = []input.Command{
	input.CmdMoveLeft, input.CmdMoveLeft,
	input.CmdMoveRight, input.CmdMoveRight,
	input.CmdRotate,
	input.CmdSoftDrop,
	input.CmdHardDrop,
}

// AutoPlay drives an engine with random commands until game over or
// MaxMoves, whichever comes first. rng picks the commands; cfg.Seed picks the
// pieces.
func AutoPlay(w io.Writer, rng *rand.Rand, cfg AutoPlayConfig) (AutoPlayResult, error) {
	if cfg.Sink == nil {
		cfg.Sink = audio.NopSink{}
	}
	if cfg.TickEvery <= 0 {
		cfg.TickEvery = 1
	}

	engine, err := game.NewEngine(game.EngineConfig{
		Width:   cfg.Width,
		Height:  cfg.Height,
		Spawner: game.NewRandomSpawner(cfg.Seed),
	})
	if err != nil {
		return AutoPlayResult{}, err
	}

	if cfg.Verbose {
		fmt.Fprintln(w, "=== Blockfall AutoPlay ===")
		fmt.Fprintf(w, "Board: %dx%d, Seed: %d\n\n", cfg.Width, cfg.Height, cfg.Seed)
	}

	var res AutoPlayResult
	play := func(out input.Outcome) {
		audio.PlayAll(cfg.Sink, audio.CuesFor(out))
		if out.Drop.Locked {
			res.Locks++
		}
		if cfg.Verbose && out.Drop.LinesCleared > 0 {
			fmt.Fprintf(w, "Move %d: cleared %d line(s) for %d points\n", res.Moves, out.Drop.LinesCleared, out.Drop.ClearPoints)
		}
	}

	for !engine.IsGameOver() && (cfg.MaxMoves <= 0 || res.Moves < cfg.MaxMoves) {
		play(input.Apply(engine, autoPlayMoves[rng.Intn(len(autoPlayMoves))]))
		res.Moves++

		if res.Moves%cfg.TickEvery == 0 && !engine.IsGameOver() {
			play(input.Gravity(engine))
		}
		if cfg.Delay > 0 {
			time.Sleep(cfg.Delay)
		}
	}

	res.Score = engine.Score()
	res.Lines = engine.LinesCleared()
	res.Level = engine.Level()
	res.GameOver = engine.IsGameOver()

	// final result is always written
	fmt.Fprint(w, RenderBoard(engine.Snapshot()))
	if res.GameOver {
		fmt.Fprintln(w, "=== Game Over ===")
	} else {
		fmt.Fprintln(w, "=== Move Limit Reached ===")
	}
	fmt.Fprintf(w, "Final Score: %d\n", res.Score)
	fmt.Fprintf(w, "Lines: %d, Level: %d\n", res.Lines, res.Level)
	fmt.Fprintf(w, "Total Moves: %d, Pieces Locked: %d\n", res.Moves, res.Locks)

	return res, nil
}

// RenderBoard draws a snapshot as text, one row per line, with the active
// piece composited in.
func RenderBoard(snap game.Snapshot) string {
	var b strings.Builder
	border := "+" + strings.Repeat("-", snap.Width) + "+\n"
	b.WriteString(border)
	for _, row := range snap.Composite() {
		b.WriteByte('|')
		for _, c := range row {
			if c == game.CellEmpty {
				b.WriteByte('.')
			} else {
				b.WriteByte(cellGlyph(c))
			}
		}
		b.WriteString("|\n")
	}
	b.WriteString(border)
	return b.String()
}

func cellGlyph(c game.Cell) byte {
	const glyphs = "IOTSZJL"
	if int(c) >= 1 && int(c) <= len(glyphs) {
		return glyphs[c-1]
	}
	return '#'
}
