// Package jacobian builds the Newton-Raphson power-flow Jacobian.
//
// The sparsity pattern is derived from the grid topology once, in New. Every
// later Update zeroes the values and reaccumulates them for the current
// voltage state; the pattern is never reallocated.
//
// Unknowns are ordered as all bus angles (every non-slack bus, ascending bus
// id) followed by all bus magnitudes (every non-generator bus, ascending bus
// id). Rows follow the same order: the P equation of bus i is row
// AngleIndex(i) and its Q equation is row MagnitudeIndex(i). Magnitude
// unknowns are relative corrections, d|V|/|V|.
package jacobian

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"github.com/edp1096/toy-powerflow/pkg/csr"
	"github.com/edp1096/toy-powerflow/pkg/grid"
)

var ErrDimensionMismatch = errors.New("jacobian: state vector does not match bus count")

// StructureInfo holds the unknown counts and the nonzero count of each
// quadrant block.
type StructureInfo struct {
	N [2]int // angle unknowns, magnitude unknowns
	S [4]int // dP/dθ, dP/d|V|, dQ/dθ, dQ/d|V|
}

func (s StructureInfo) Unknowns() int { return s.N[0] + s.N[1] }

func (s StructureInfo) NonZeros() int { return s.S[0] + s.S[1] + s.S[2] + s.S[3] }

func (s StructureInfo) String() string {
	return fmt.Sprintf("unknowns %d (angle %d, magnitude %d), nonzeros %d [%d %d %d %d]",
		s.Unknowns(), s.N[0], s.N[1], s.NonZeros(), s.S[0], s.S[1], s.S[2], s.S[3])
}

type Jacobian struct {
	M    *csr.Matrix[float64]
	Info StructureInfo

	grid *grid.Grid
	y    *csr.Matrix[complex128]
	x    csr.Glob[complex128]
}

// New computes the structure for g, assigns the Jacobian indices of every
// bus and assembles the values for state x.
func New(g *grid.Grid, y *csr.Matrix[complex128], x csr.Glob[complex128]) (*Jacobian, error) {
	if len(x) != len(g.Buses) {
		return nil, fmt.Errorf("%w: %d entries for %d buses", ErrDimensionMismatch, len(x), len(g.Buses))
	}

	j := &Jacobian{grid: g, y: y, x: x}
	j.computeStructureInfo()
	j.M = csr.New[float64](j.Info.Unknowns(), j.Info.NonZeros())
	j.computeMapInfo()

	if err := j.M.Validate(); err != nil {
		return nil, fmt.Errorf("jacobian structure: %w", err)
	}
	if err := j.Update(); err != nil {
		return nil, err
	}
	return j, nil
}

func slack(b *grid.Bus) bool { return b.Slack }

// generator reports whether b holds its voltage magnitude.
func generator(b *grid.Bus) bool { return b.HasGenerator || b.Slack }

func (j *Jacobian) computeStructureInfo() {
	buses := j.grid.Buses
	var info StructureInfo

	for _, b := range buses {
		b.AngleIndex, b.MagnitudeIndex = grid.Unassigned, grid.Unassigned

		if !slack(b) {
			b.AngleIndex = info.N[0]
			info.N[0]++
			info.S[0]++
			if !generator(b) {
				info.S[1]++
			}
			for _, k := range b.AdjacentBuses() {
				o := buses[k]
				if !slack(o) {
					info.S[0]++
				}
				if !generator(o) {
					info.S[1]++
				}
			}
		}

		if !generator(b) {
			b.MagnitudeIndex = info.N[1]
			info.N[1]++
			info.S[2]++
			info.S[3]++
			for _, k := range b.AdjacentBuses() {
				o := buses[k]
				if !slack(o) {
					info.S[2]++
				}
				if !generator(o) {
					info.S[3]++
				}
			}
		}
	}

	for _, b := range buses {
		if b.MagnitudeIndex != grid.Unassigned {
			b.MagnitudeIndex += info.N[0]
		}
	}
	j.Info = info
}

// columns appends the unknowns touched by either equation of bus b.
func (j *Jacobian) columns(cols []int, b *grid.Bus) []int {
	buses := j.grid.Buses

	if !slack(b) {
		cols = append(cols, b.AngleIndex)
	}
	for _, k := range b.AdjacentBuses() {
		if o := buses[k]; !slack(o) {
			cols = append(cols, o.AngleIndex)
		}
	}
	if !generator(b) {
		cols = append(cols, b.MagnitudeIndex)
	}
	for _, k := range b.AdjacentBuses() {
		if o := buses[k]; !generator(o) {
			cols = append(cols, o.MagnitudeIndex)
		}
	}
	return cols
}

func (j *Jacobian) computeMapInfo() {
	m := j.M
	row, nz := 0, 0

	fill := func(b *grid.Bus) {
		m.Rows[row] = nz
		nz += copy(m.Cols[nz:], j.columns(nil, b))
		row++
	}

	// P rows, then Q rows.
	for _, b := range j.grid.Buses {
		if !slack(b) {
			fill(b)
		}
	}
	for _, b := range j.grid.Buses {
		if !generator(b) {
			fill(b)
		}
	}
	m.Rows[m.N] = nz
	m.SortRows()
}

// SetState replaces the voltage state used by Update.
func (j *Jacobian) SetState(x csr.Glob[complex128]) error {
	if len(x) != len(j.grid.Buses) {
		return fmt.Errorf("%w: %d entries for %d buses", ErrDimensionMismatch, len(x), len(j.grid.Buses))
	}
	j.x = x
	return nil
}

func (j *Jacobian) State() csr.Glob[complex128] { return j.x }

func (j *Jacobian) Admittance() *csr.Matrix[complex128] { return j.y }

// Update zeroes the values and reassembles them from the current state.
//
// Self entries accumulate over neighbors while cross entries are assigned;
// with distinct neighbors every cross slot is written once per update.
func (j *Jacobian) Update() error {
	j.M.Zero()
	for i := range j.grid.Buses {
		if err := j.gradient(i); err != nil {
			return fmt.Errorf("jacobian update at bus %d: %w", i, err)
		}
	}
	return nil
}

func (j *Jacobian) gradient(i int) error {
	b := j.grid.Buses[i]
	if slack(b) {
		return nil
	}

	var err error
	at := func(r, c int) *float64 {
		if err != nil {
			return new(float64)
		}
		p, e := j.M.Ptr(r, c)
		if e != nil {
			err = e
			return new(float64)
		}
		return p
	}

	x, y := j.x, j.y
	pi, qi := b.AngleIndex, b.MagnitudeIndex
	vi := cmplx.Abs(x[i])

	for _, k := range b.AdjacentBuses() {
		nbr := j.grid.Buses[k]
		yij := y.Get(i, k)

		mag := vi * cmplx.Abs(x[k]) * cmplx.Abs(yij)
		ang := cmplx.Phase(yij) + cmplx.Phase(x[k]) - cmplx.Phase(x[i])

		dPdA := mag * math.Sin(ang)
		dPdM := mag * math.Cos(ang)
		dQdA := -mag * math.Cos(ang)
		dQdM := -mag * math.Sin(ang)

		// dP
		*at(pi, pi) += dPdA
		if !generator(b) {
			*at(pi, qi) += dPdM
		}
		if !slack(nbr) {
			*at(pi, nbr.AngleIndex) = -dPdA
			if !generator(nbr) {
				*at(pi, nbr.MagnitudeIndex) = dPdM
			}
		}

		// dQ
		if !generator(b) {
			*at(qi, pi) -= dQdA
			*at(qi, qi) += dQdM
			if !slack(nbr) {
				*at(qi, nbr.AngleIndex) = dQdA
				if !generator(nbr) {
					*at(qi, nbr.MagnitudeIndex) = dQdM
				}
			}
		}
	}

	if !generator(b) {
		yii := y.Get(i, i)
		*at(pi, qi) += 2 * vi * vi * real(yii)
		*at(qi, qi) -= 2 * vi * vi * imag(yii)
	}
	return err
}

// Dump returns the structure summary followed by the raw CSR arrays.
func (j *Jacobian) Dump() string {
	var sb strings.Builder
	sb.WriteString(j.Info.String())
	sb.WriteString("\n")
	sb.WriteString(j.M.String())
	return sb.String()
}
