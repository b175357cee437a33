// Package core contains the basic chess board vocabulary shared by the
// runtime: squares, colors, piece types, moves and sensor occupancy bitmaps.
package core

import "fmt"

// Square represents a square on the board, ordered A1=0, B1=1 .., H8=63. The
// numbering matches the sensor scan order of the board mat and a 64-bit
// interpretation as an occupancy bitmap (bit 0 = A1, bit 63 = H8). 6 bits.
type Square uint8

const (
	A1 Square = iota
	B1
	C1
	D1
	E1
	F1
	G1
	H1

	A2
	B2
	C2
	D2
	E2
	F2
	G2
	H2

	A3
	B3
	C3
	D3
	E3
	F3
	G3
	H3

	A4
	B4
	C4
	D4
	E4
	F4
	G4
	H4

	A5
	B5
	C5
	D5
	E5
	F5
	G5
	H5

	A6
	B6
	C6
	D6
	E6
	F6
	G6
	H6

	A7
	B7
	C7
	D7
	E7
	F7
	G7
	H7

	A8
	B8
	C8
	D8
	E8
	F8
	G8
	H8
)

const (
	ZeroSquare Square = 0
	NumSquares Square = 64
)

// NewSquare returns the square at the given file and rank (both 0-7).
func NewSquare(file, rank int) Square {
	return Square(rank*8 + file)
}

// ParseSquare parses a square in algebraic notation, such as "e4".
func ParseSquare(file, rank rune) (Square, error) {
	if file < 'a' || 'h' < file {
		return 0, fmt.Errorf("invalid file: '%v'", string(file))
	}
	if rank < '1' || '8' < rank {
		return 0, fmt.Errorf("invalid rank: '%v'", string(rank))
	}
	return NewSquare(int(file-'a'), int(rank-'1')), nil
}

func (s Square) IsValid() bool {
	return s < NumSquares
}

// File returns the file index, 0-7 for a-h.
func (s Square) File() int {
	return int(s) & 0x7
}

// Rank returns the rank index, 0-7 for 1-8.
func (s Square) Rank() int {
	return int(s) >> 3
}

// ManhattanDistance returns the file+rank walking distance to the given square.
func (s Square) ManhattanDistance(o Square) int {
	df := s.File() - o.File()
	if df < 0 {
		df = -df
	}
	dr := s.Rank() - o.Rank()
	if dr < 0 {
		dr = -dr
	}
	return df + dr
}

func (s Square) String() string {
	if !s.IsValid() {
		return "??"
	}
	return string([]byte{byte('a' + s.File()), byte('1' + s.Rank())})
}
