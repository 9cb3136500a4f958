package matrix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/edp1096/toy-powerflow/pkg/csr"
)

// DenseSolver expands the system into a dense matrix and solves it with a
// partially pivoted LU. It is meant for small grids and for cross-checking
// the sparse backend.
type DenseSolver struct {
	// MaxCond is the largest condition number accepted before the system
	// is reported singular.
	MaxCond float64

	lu mat.LU
}

func NewDenseSolver() *DenseSolver {
	return &DenseSolver{MaxCond: mat.ConditionTolerance}
}

func (d *DenseSolver) Solve(a *csr.Matrix[float64], b []float64) ([]float64, error) {
	if err := precheck("dense", a, b); err != nil {
		return nil, err
	}
	n := a.N
	if n == 0 {
		return []float64{}, nil
	}

	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for k := a.Rows[i]; k < a.Rows[i+1]; k++ {
			m.Set(i, a.Cols[k], m.At(i, a.Cols[k])+a.Vals[k])
		}
	}

	d.lu.Factorize(m)
	if c := d.lu.Cond(); math.IsInf(c, 1) || math.IsNaN(c) || c > d.MaxCond {
		return nil, &SolverError{Backend: "dense", Row: -1,
			Err: fmt.Errorf("%w: condition number %g", ErrSingular, c)}
	}

	x := mat.NewVecDense(n, nil)
	if err := d.lu.SolveVecTo(x, false, mat.NewVecDense(n, append([]float64(nil), b...))); err != nil {
		return nil, &SolverError{Backend: "dense", Row: -1, Err: fmt.Errorf("%w: %v", ErrSolve, err)}
	}

	out := make([]float64, n)
	copy(out, x.RawVector().Data)
	if err := checkSolution("dense", out); err != nil {
		return nil, err
	}
	return out, nil
}
