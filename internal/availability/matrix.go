// Package availability turns per-entity availability into dense 0/1 matrices.
package availability

import "fmt"

// Matrix is a dense row-major 0/1 matrix.
type Matrix struct {
	rows, cols int
	cells      []uint8
}

// NewMatrix returns a rows x cols matrix filled with fill.
func NewMatrix(rows, cols int, fill uint8) *Matrix {
	m := &Matrix{rows: rows, cols: cols, cells: make([]uint8, rows*cols)}
	if fill != 0 {
		for i := range m.cells {
			m.cells[i] = fill
		}
	}
	return m
}

func (m *Matrix) Rows() int { return m.rows }
func (m *Matrix) Cols() int { return m.cols }

func (m *Matrix) At(r, c int) uint8 {
	m.check(r, c)
	return m.cells[r*m.cols+c]
}

func (m *Matrix) Set(r, c int, v uint8) {
	m.check(r, c)
	m.cells[r*m.cols+c] = v
}

// Row returns row r. The slice aliases the matrix.
func (m *Matrix) Row(r int) []uint8 {
	return m.cells[r*m.cols : (r+1)*m.cols]
}

// Count returns the number of set cells.
func (m *Matrix) Count() int {
	n := 0
	for _, v := range m.cells {
		if v != 0 {
			n++
		}
	}
	return n
}

func (m *Matrix) check(r, c int) {
	if r < 0 || r >= m.rows || c < 0 || c >= m.cols {
		panic(fmt.Sprintf("availability: index (%d, %d) out of range %dx%d", r, c, m.rows, m.cols))
	}
}
