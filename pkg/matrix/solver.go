// Package matrix solves the linear systems of a Newton-Raphson step.
//
// Two backends implement Solver: a sparse direct one built on the Markowitz LU
// of github.com/edp1096/sparse and a dense LU built on gonum.
package matrix

import (
	"errors"
	"fmt"
	"math"

	"github.com/edp1096/toy-powerflow/pkg/csr"
)

var (
	ErrSingular = errors.New("matrix: singular system")
	ErrSolve    = errors.New("matrix: solve failed")
)

// Solver solves a·x = b for a square CSR matrix. Indices are zero-based.
type Solver interface {
	Solve(a *csr.Matrix[float64], b []float64) ([]float64, error)
}

// SolverError reports a failed solve. Row is the offending zero-based row or
// -1 when the backend cannot name one.
type SolverError struct {
	Backend string
	Row     int
	Err     error
}

func (e *SolverError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("%s solver: row %d: %v", e.Backend, e.Row, e.Err)
	}
	return fmt.Sprintf("%s solver: %v", e.Backend, e.Err)
}

func (e *SolverError) Unwrap() error { return e.Err }

// precheck rejects systems no backend can solve: mismatched sizes,
// non-finite entries and rows without a single nonzero value.
func precheck(backend string, a *csr.Matrix[float64], b []float64) error {
	if len(b) != a.N {
		return &SolverError{Backend: backend, Row: -1,
			Err: fmt.Errorf("%w: rhs has %d entries for a %dx%d matrix", ErrSolve, len(b), a.N, a.N)}
	}
	for i := 0; i < a.N; i++ {
		if a.RowEmpty(i) {
			return &SolverError{Backend: backend, Row: i, Err: fmt.Errorf("%w: empty row", ErrSingular)}
		}
		for k := a.Rows[i]; k < a.Rows[i+1]; k++ {
			if !finite(a.Vals[k]) {
				return &SolverError{Backend: backend, Row: i, Err: fmt.Errorf("%w: non-finite entry", ErrSolve)}
			}
		}
		if !finite(b[i]) {
			return &SolverError{Backend: backend, Row: i, Err: fmt.Errorf("%w: non-finite rhs", ErrSolve)}
		}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func checkSolution(backend string, x []float64) error {
	for i, v := range x {
		if !finite(v) {
			return &SolverError{Backend: backend, Row: i, Err: fmt.Errorf("%w: non-finite solution", ErrSolve)}
		}
	}
	return nil
}

// New returns the backend registered under name: "sparse" or "dense".
func New(name string) (Solver, error) {
	switch name {
	case "", "sparse":
		return NewSparseSolver(), nil
	case "dense":
		return NewDenseSolver(), nil
	}
	return nil, fmt.Errorf("matrix: unknown solver %q", name)
}
