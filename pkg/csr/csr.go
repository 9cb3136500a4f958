// Package csr provides a compressed-sparse-row matrix and a fixed-size dense
// vector, generic over real and complex element types.
package csr

import (
	"errors"
	"fmt"
	"io"
	"math/cmplx"
	"slices"
	"strconv"
	"strings"
)

// Number is the set of element types a Matrix or Glob can hold. Named types
// are excluded so that Abs and FormatValue cover every member.
type Number interface {
	float32 | float64 | complex64 | complex128
}

// Unset marks row pointers and column indices that have not been populated.
const Unset = -1

var (
	ErrOutOfRange = errors.New("csr: entry out of range")
	ErrInvariant  = errors.New("csr: invariant violated")
)

// Matrix is a square n x n CSR matrix. Rows has n+1 entries, Cols and Vals
// have one entry per stored nonzero.
type Matrix[T Number] struct {
	N    int
	Rows []int
	Cols []int
	Vals []T
}

// New allocates an n x n matrix with room for nnz entries. Row pointers and
// column indices start at Unset, values at zero.
func New[T Number](n, nnz int) *Matrix[T] {
	m := &Matrix[T]{
		N:    n,
		Rows: make([]int, n+1),
		Cols: make([]int, nnz),
		Vals: make([]T, nnz),
	}
	for i := range m.Rows {
		m.Rows[i] = Unset
	}
	for i := range m.Cols {
		m.Cols[i] = Unset
	}
	return m
}

func (m *Matrix[T]) Size() int { return m.N }

func (m *Matrix[T]) NNZ() int { return len(m.Vals) }

func (m *Matrix[T]) find(row, col int) int {
	if row < 0 || row >= m.N {
		return -1
	}
	for k := m.Rows[row]; k < m.Rows[row+1]; k++ {
		if m.Cols[k] == col {
			return k
		}
	}
	return -1
}

// At returns the stored value at (row, col). It fails with ErrOutOfRange when
// the pattern has no entry there.
func (m *Matrix[T]) At(row, col int) (T, error) {
	k := m.find(row, col)
	if k < 0 {
		var zero T
		return zero, fmt.Errorf("%w (%d,%d)", ErrOutOfRange, row, col)
	}
	return m.Vals[k], nil
}

// Get is At for callers that tolerate missing entries; absent entries read as zero.
func (m *Matrix[T]) Get(row, col int) T {
	k := m.find(row, col)
	if k < 0 {
		var zero T
		return zero
	}
	return m.Vals[k]
}

// Ptr returns the address of the stored value at (row, col) so callers can
// accumulate in place.
func (m *Matrix[T]) Ptr(row, col int) (*T, error) {
	k := m.find(row, col)
	if k < 0 {
		return nil, fmt.Errorf("%w (%d,%d)", ErrOutOfRange, row, col)
	}
	return &m.Vals[k], nil
}

// Zero resets every value to zero. The pattern is untouched.
func (m *Matrix[T]) Zero() {
	clear(m.Vals)
}

// SortRows orders the column indices of every row ascending, carrying the
// values along.
func (m *Matrix[T]) SortRows() {
	type entry struct {
		col int
		val T
	}
	var buf []entry
	for i := 0; i < m.N; i++ {
		lo, hi := m.Rows[i], m.Rows[i+1]
		buf = buf[:0]
		for k := lo; k < hi; k++ {
			buf = append(buf, entry{m.Cols[k], m.Vals[k]})
		}
		slices.SortStableFunc(buf, func(a, b entry) int { return a.col - b.col })
		for k, e := range buf {
			m.Cols[lo+k] = e.col
			m.Vals[lo+k] = e.val
		}
	}
}

// Validate checks the CSR invariants: row pointers start at zero, never
// decrease and end at NNZ; columns are in range and strictly ascending per row.
func (m *Matrix[T]) Validate() error {
	if len(m.Rows) != m.N+1 {
		return fmt.Errorf("%w: %d row pointers for %d rows", ErrInvariant, len(m.Rows), m.N)
	}
	if m.Rows[0] != 0 {
		return fmt.Errorf("%w: first row pointer is %d", ErrInvariant, m.Rows[0])
	}
	if m.Rows[m.N] != len(m.Cols) || len(m.Cols) != len(m.Vals) {
		return fmt.Errorf("%w: last row pointer %d, %d columns, %d values",
			ErrInvariant, m.Rows[m.N], len(m.Cols), len(m.Vals))
	}
	for i := 0; i < m.N; i++ {
		if m.Rows[i+1] < m.Rows[i] {
			return fmt.Errorf("%w: row pointer decreases at row %d", ErrInvariant, i)
		}
		for k := m.Rows[i]; k < m.Rows[i+1]; k++ {
			if m.Cols[k] < 0 || m.Cols[k] >= m.N {
				return fmt.Errorf("%w: column %d out of range in row %d", ErrInvariant, m.Cols[k], i)
			}
			if k > m.Rows[i] && m.Cols[k] <= m.Cols[k-1] {
				return fmt.Errorf("%w: columns not strictly ascending in row %d", ErrInvariant, i)
			}
		}
	}
	return nil
}

// RowEmpty reports whether row i stores no entry with a nonzero value.
func (m *Matrix[T]) RowEmpty(i int) bool {
	for k := m.Rows[i]; k < m.Rows[i+1]; k++ {
		if m.Vals[k] != 0 {
			return false
		}
	}
	return true
}

// MulVec returns m*x.
func (m *Matrix[T]) MulVec(x []T) []T {
	y := make([]T, m.N)
	for i := 0; i < m.N; i++ {
		var s T
		for k := m.Rows[i]; k < m.Rows[i+1]; k++ {
			s += m.Vals[k] * x[m.Cols[k]]
		}
		y[i] = s
	}
	return y
}

// Dense expands the matrix into a row-major dense copy.
func (m *Matrix[T]) Dense() [][]T {
	d := make([][]T, m.N)
	for i := range d {
		d[i] = make([]T, m.N)
		for k := m.Rows[i]; k < m.Rows[i+1]; k++ {
			d[i][m.Cols[k]] += m.Vals[k]
		}
	}
	return d
}

// String dumps the raw v, c and r arrays, one matrix row per line.
func (m *Matrix[T]) String() string {
	var sb strings.Builder

	dump := func(name string, item func(k int) string) {
		sb.WriteString(name + ": [")
		for i := 0; i < m.N; i++ {
			for k := m.Rows[i]; k < m.Rows[i+1]; k++ {
				sb.WriteString(item(k))
				if k < len(m.Vals)-1 {
					sb.WriteString(",")
				}
			}
			if i < m.N-1 && m.Rows[i+1] > m.Rows[i] {
				sb.WriteString("\n")
			}
		}
		sb.WriteString("]\n\n")
	}
	dump("v", func(k int) string { return FormatValue(m.Vals[k]) })
	dump("c", func(k int) string { return strconv.Itoa(m.Cols[k]) })

	sb.WriteString("r: [")
	for i, r := range m.Rows {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(strconv.Itoa(r))
	}
	sb.WriteString("]\n")
	return sb.String()
}

// CSV writes the matrix as a dense comma separated table with 11 significant
// digits. Absent entries are written as zero.
func (m *Matrix[T]) CSV(w io.Writer) error {
	for i := 0; i < m.N; i++ {
		fields := make([]string, m.N)
		for j := 0; j < m.N; j++ {
			fields[j] = FormatValue(m.Get(i, j))
		}
		if _, err := io.WriteString(w, strings.Join(fields, ",")+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// FormatValue renders a real value as %.11g and a complex value as (re,im).
func FormatValue[T Number](v T) string {
	switch x := any(v).(type) {
	case float32:
		return strconv.FormatFloat(float64(x), 'g', 11, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', 11, 64)
	case complex64:
		c := complex128(x)
		return "(" + strconv.FormatFloat(real(c), 'g', 11, 64) + "," + strconv.FormatFloat(imag(c), 'g', 11, 64) + ")"
	case complex128:
		return "(" + strconv.FormatFloat(real(x), 'g', 11, 64) + "," + strconv.FormatFloat(imag(x), 'g', 11, 64) + ")"
	}
	return fmt.Sprint(v)
}

// Abs returns |v| for any supported element type.
func Abs[T Number](v T) float64 {
	switch x := any(v).(type) {
	case float32:
		if x < 0 {
			return float64(-x)
		}
		return float64(x)
	case float64:
		if x < 0 {
			return -x
		}
		return x
	case complex64:
		return cmplx.Abs(complex128(x))
	case complex128:
		return cmplx.Abs(x)
	}
	panic(fmt.Sprintf("csr: unsupported element type %T", v))
}
