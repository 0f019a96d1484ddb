package game

import (
	"errors"
	"fmt"
)

// ErrInvalidDimensions is returned when a board is built with a non-positive size.
var ErrInvalidDimensions = errors.New("board dimensions must be positive")

// Board is the fixed-size occupancy grid. Dimensions never change after
// construction and every row always holds exactly Width cells.
type Board struct {
	width  int
	height int
	cells  [][]Cell // cells[y][x]
}

// NewBoard creates an empty board
func NewBoard(width, height int) (*Board, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("new board %dx%d: %w", width, height, ErrInvalidDimensions)
	}

	b := &Board{
		width:  width,
		height: height,
		cells:  make([][]Cell, height),
	}
	for y := range b.cells {
		b.cells[y] = make([]Cell, width)
	}
	return b, nil
}

// Width returns the number of columns.
func (b *Board) Width() int { return b.width }

// Height returns the number of rows.
func (b *Board) Height() int { return b.height }

// At returns the cell at (x, y). Coordinates outside the board read as empty.
func (b *Board) At(x, y int) Cell {
	if x < 0 || x >= b.width || y < 0 || y >= b.height {
		return CellEmpty
	}
	return b.cells[y][x]
}

// Collides reports whether matrix anchored at (x, y) overlaps a wall, the
// floor, or an occupied cell.
//
// Cells above the board (absolute y < 0) are checked against the side walls
// only. This lets multi-row pieces spawn at y=0 and sit partly off-board.
func (b *Board) Collides(m Matrix, x, y int) bool {
	for py, row := range m {
		for px, c := range row {
			if c == CellEmpty {
				continue
			}

			ax := x + px
			ay := y + py

			if ax < 0 || ax >= b.width || ay >= b.height {
				return true
			}
			if ay >= 0 && b.cells[ay][ax] != CellEmpty {
				return true
			}
		}
	}
	return false
}

// Place writes the matrix's occupied cells into the board. Cells still above
// the board are dropped, so locking a piece partially off-board commits only
// its visible portion.
func (b *Board) Place(m Matrix, x, y int) {
	for py, row := range m {
		for px, c := range row {
			if c == CellEmpty {
				continue
			}

			ax := x + px
			ay := y + py
			if ay < 0 || ay >= b.height || ax < 0 || ax >= b.width {
				continue
			}
			b.cells[ay][ax] = c
		}
	}
}

// ClearLines removes every full row, shifting the rows above down and
// inserting empty rows at the top. Returns the number of rows removed.
func (b *Board) ClearLines() int {
	cleared := 0

	for y := b.height - 1; y >= 0; {
		if !b.rowFull(y) {
			y--
			continue
		}

		// Recycle the removed row as the new empty top row.
		removed := b.cells[y]
		copy(b.cells[1:y+1], b.cells[:y])
		clear(removed)
		b.cells[0] = removed
		cleared++
		// Same index again: the row above now sits here.
	}

	return cleared
}

func (b *Board) rowFull(y int) bool {
	for _, c := range b.cells[y] {
		if c == CellEmpty {
			return false
		}
	}
	return true
}

// Reset empties every cell.
func (b *Board) Reset() {
	for _, row := range b.cells {
		clear(row)
	}
}

// Cells returns a deep copy of the grid, indexed [y][x].
func (b *Board) Cells() [][]Cell {
	out := make([][]Cell, b.height)
	for y, row := range b.cells {
		out[y] = append([]Cell(nil), row...)
	}
	return out
}
