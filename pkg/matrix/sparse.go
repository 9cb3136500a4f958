package matrix

import (
	"fmt"
	"slices"

	"github.com/edp1096/sparse"

	"github.com/edp1096/toy-powerflow/pkg/csr"
)

// SparseSolver keeps one sparse matrix across calls. While the CSR pattern is
// unchanged the matrix is cleared and restamped, so the pivot order found by
// the first factorization is reused. Restamping a reordered matrix goes
// through the external to internal index maps, hence Translate.
type SparseSolver struct {
	Size   int
	matrix *sparse.Matrix
	config *sparse.Configuration
	rhs    []float64 // 1-based indexing

	rows, cols []int // pattern of the stamped matrix
}

func NewSparseSolver() *SparseSolver {
	return &SparseSolver{
		config: &sparse.Configuration{
			Real:                    true,
			Complex:                 false,
			SeparatedComplexVectors: false,
			Expandable:              true,
			Translate:               true,
			ModifiedNodal:           false,
			TiesMultiplier:          5,
			PrinterWidth:            140,
			Annotate:                0,
		},
	}
}

func (s *SparseSolver) setup(a *csr.Matrix[float64]) error {
	if s.matrix != nil && s.Size == a.N && slices.Equal(s.rows, a.Rows) && slices.Equal(s.cols, a.Cols) {
		s.matrix.Clear()
		return nil
	}

	s.Destroy()
	mat, err := sparse.Create(int64(a.N), s.config)
	if err != nil {
		return fmt.Errorf("creating sparse matrix: %w", err)
	}
	s.matrix = mat
	s.Size = a.N
	s.rhs = make([]float64, a.N+1)
	s.rows = slices.Clone(a.Rows)
	s.cols = slices.Clone(a.Cols)
	return nil
}

func (s *SparseSolver) stamp(a *csr.Matrix[float64]) error {
	for i := 0; i < a.N; i++ {
		for k := a.Rows[i]; k < a.Rows[i+1]; k++ {
			e := s.matrix.GetElement(int64(i+1), int64(a.Cols[k]+1))
			if e == nil {
				return fmt.Errorf("%w: element (%d,%d) out of bounds", ErrSolve, i, a.Cols[k])
			}
			e.Real += a.Vals[k]
		}
	}
	return nil
}

// Solve factors a and solves a·x = b. A zero pivot on a reused ordering
// triggers one reorder before the system is declared singular.
func (s *SparseSolver) Solve(a *csr.Matrix[float64], b []float64) ([]float64, error) {
	if err := precheck("sparse", a, b); err != nil {
		return nil, err
	}
	if a.N == 0 {
		return []float64{}, nil
	}
	if err := s.setup(a); err != nil {
		return nil, &SolverError{Backend: "sparse", Row: -1, Err: fmt.Errorf("%w: %v", ErrSolve, err)}
	}
	if err := s.stamp(a); err != nil {
		return nil, &SolverError{Backend: "sparse", Row: -1, Err: err}
	}

	if err := s.matrix.Factor(); err != nil {
		// the failed factorization overwrote the values
		s.matrix.Clear()
		if err := s.stamp(a); err != nil {
			return nil, &SolverError{Backend: "sparse", Row: -1, Err: err}
		}
		s.matrix.NeedsOrdering = true
		if err := s.matrix.Factor(); err != nil {
			return nil, &SolverError{Backend: "sparse", Row: s.singularRow(),
				Err: fmt.Errorf("%w: %v", ErrSingular, err)}
		}
	}

	for i := range s.rhs {
		s.rhs[i] = 0
	}
	copy(s.rhs[1:], b)

	solution, err := s.matrix.Solve(s.rhs)
	if err != nil {
		return nil, &SolverError{Backend: "sparse", Row: -1, Err: fmt.Errorf("%w: %v", ErrSolve, err)}
	}

	x := make([]float64, a.N)
	copy(x, solution[1:])
	if err := checkSolution("sparse", x); err != nil {
		return nil, err
	}
	return x, nil
}

func (s *SparseSolver) singularRow() int {
	if s.matrix == nil || s.matrix.SingularRow <= 0 {
		return -1
	}
	return int(s.matrix.SingularRow) - 1
}

func (s *SparseSolver) Destroy() {
	if s.matrix != nil {
		s.matrix.Destroy()
		s.matrix = nil
	}
}
