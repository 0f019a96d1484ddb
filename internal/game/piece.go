package game

import (
	"strconv"
	"strings"
)

// Cell is a single board square. Zero is empty; 1..7 identify the piece kind
// that filled it (used only for colour by renderers).
type Cell uint8

// CellEmpty marks an unoccupied square.
const CellEmpty Cell = 0

// MarshalJSON encodes the cell as a number so rows serialize as arrays
// rather than base64 byte strings.
func (c Cell) MarshalJSON() ([]byte, error) {
	return strconv.AppendUint(nil, uint64(c), 10), nil
}

// Kind is one of the seven tetromino variants.
type Kind uint8

const (
	KindI Kind = iota + 1
	KindO
	KindT
	KindS
	KindZ
	KindJ
	KindL
)

// Kinds lists every piece kind in id order.
var Kinds = [...]Kind{KindI, KindO, KindT, KindS, KindZ, KindJ, KindL}

// canonicalShapes holds the spawn orientation of every kind.
// Never handed out directly; Shape returns a copy.
var canonicalShapes = map[Kind]Matrix{
	KindI: {
		{1, 1, 1, 1},
	},
	KindO: {
		{2, 2},
		{2, 2},
	},
	KindT: {
		{0, 3, 0},
		{3, 3, 3},
	},
	KindS: {
		{0, 4, 4},
		{4, 4, 0},
	},
	KindZ: {
		{5, 5, 0},
		{0, 5, 5},
	},
	KindJ: {
		{6, 0, 0},
		{6, 6, 6},
	},
	KindL: {
		{0, 0, 7},
		{7, 7, 7},
	},
}

// String returns the single-letter name of the kind
func (k Kind) String() string {
	switch k {
	case KindI:
		return "I"
	case KindO:
		return "O"
	case KindT:
		return "T"
	case KindS:
		return "S"
	case KindZ:
		return "Z"
	case KindJ:
		return "J"
	case KindL:
		return "L"
	default:
		return "?"
	}
}

// Valid reports whether k is one of the seven kinds.
func (k Kind) Valid() bool {
	return k >= KindI && k <= KindL
}

// Cell returns the board value written for this kind.
func (k Kind) Cell() Cell {
	return Cell(k)
}

// Shape returns a fresh copy of the kind's canonical orientation.
func (k Kind) Shape() Matrix {
	return canonicalShapes[k].Clone()
}

// ParseKind maps a letter (case-insensitive) to its kind.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if strings.EqualFold(k.String(), s) {
			return k, true
		}
	}
	return 0, false
}

// Matrix is a rectangular grid of cells describing a piece orientation.
// Rows are indexed first: m[row][col].
type Matrix [][]Cell

// Rows returns the matrix height.
func (m Matrix) Rows() int {
	return len(m)
}

// Cols returns the matrix width.
func (m Matrix) Cols() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	if m == nil {
		return nil
	}
	out := make(Matrix, len(m))
	for i, row := range m {
		out[i] = append([]Cell(nil), row...)
	}
	return out
}

// Equal reports whether both matrices have the same shape and contents.
func (m Matrix) Equal(other Matrix) bool {
	if len(m) != len(other) {
		return false
	}
	for i := range m {
		if len(m[i]) != len(other[i]) {
			return false
		}
		for j := range m[i] {
			if m[i][j] != other[i][j] {
				return false
			}
		}
	}
	return true
}

// Rotate turns the matrix 90 degrees. An R×C input yields a C×R output with
// out[i][j] = in[R-1-j][i]. The input is left untouched.
//
// There is only this one direction and no wall-kick table: callers reject a
// rotation that collides.
func Rotate(m Matrix) Matrix {
	rows := m.Rows()
	cols := m.Cols()

	out := make(Matrix, cols)
	for i := 0; i < cols; i++ {
		out[i] = make([]Cell, rows)
		for j := 0; j < rows; j++ {
			out[i][j] = m[rows-1-j][i]
		}
	}
	return out
}

// ActivePiece is the falling piece. Values are replaced wholesale on every
// spawn, move and rotation; the matrix is never edited in place.
type ActivePiece struct {
	Kind   Kind
	Matrix Matrix
	X, Y   int // top-left anchor in board coordinates; Y may be negative
}

// moved returns a copy of the piece at a new anchor.
func (p ActivePiece) moved(dx, dy int) ActivePiece {
	p.X += dx
	p.Y += dy
	return p
}
