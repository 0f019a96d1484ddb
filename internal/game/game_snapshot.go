package game

// PieceSnapshot is an immutable copy of the active piece for rendering
type PieceSnapshot struct {
	Kind   string `json:"kind"`
	Matrix Matrix `json:"matrix"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// Snapshot is a complete immutable game state for rendering.
// Slices are deep copies, so readers never alias engine memory.
type Snapshot struct {
	Width          int            `json:"width"`
	Height         int            `json:"height"`
	Cells          [][]Cell       `json:"cells"`
	Piece          *PieceSnapshot `json:"piece,omitempty"`
	Score          int            `json:"score"`
	Lines          int            `json:"lines"`
	Level          int            `json:"level"`
	FallIntervalMs int            `json:"fallIntervalMs"`
	GameOver       bool           `json:"gameOver"`
}

// Snapshot copies the current state
func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{
		Width:          e.board.Width(),
		Height:         e.board.Height(),
		Cells:          e.board.Cells(),
		Score:          e.score.Score(),
		Lines:          e.score.Lines(),
		Level:          e.score.Level(),
		FallIntervalMs: int(e.score.FallInterval().Milliseconds()),
		GameOver:       e.gameOver,
	}

	if e.hasPiece {
		snap.Piece = &PieceSnapshot{
			Kind:   e.piece.Kind.String(),
			Matrix: e.piece.Matrix.Clone(),
			X:      e.piece.X,
			Y:      e.piece.Y,
		}
	}

	return snap
}

// Composite returns the board cells with the active piece drawn on top.
// Piece cells above the board are omitted.
func (s Snapshot) Composite() [][]Cell {
	out := make([][]Cell, len(s.Cells))
	for y, row := range s.Cells {
		out[y] = append([]Cell(nil), row...)
	}

	if s.Piece == nil {
		return out
	}
	for py, row := range s.Piece.Matrix {
		for px, c := range row {
			x, y := s.Piece.X+px, s.Piece.Y+py
			if c == CellEmpty || y < 0 || y >= s.Height || x < 0 || x >= s.Width {
				continue
			}
			out[y][x] = c
		}
	}
	return out
}
