// Package admittance assembles the bus admittance matrix (Y-bus) of a grid.
package admittance

import (
	"math/cmplx"

	"github.com/edp1096/toy-powerflow/pkg/csr"
	"github.com/edp1096/toy-powerflow/pkg/grid"
)

// Capacity is the number of slots Build reserves: two per branch plus one
// diagonal per bus.
func Capacity(g *grid.Grid) int {
	return 2*g.Lines + 2*g.Xfmrs + len(g.Buses)
}

// Build returns the Y-bus of g as a square CSR matrix, one row per bus.
//
// Each row holds the diagonal plus one slot per distinct neighbor, so
// parallel branches accumulate into a shared off-diagonal slot.
//
// Transformers: the off-diagonal gets -y/Re(t) from both ends. The diagonal of
// the higher rated end gets y/Re(t)^2 and the other end gets y; the tap side
// is chosen by comparing bus ratings.
func Build(g *grid.Grid) *csr.Matrix[complex128] {
	n := len(g.Buses)

	nnz := 0
	for _, b := range g.Buses {
		nnz += len(b.AdjacentBuses()) + 1
	}
	m := csr.New[complex128](n, nnz)

	x := 0
	for i, b := range g.Buses {
		m.Rows[i] = x
		x += len(b.AdjacentBuses()) + 1
	}
	m.Rows[n] = x

	for i := range g.Buses {
		stamp(g, m, i)
	}
	m.SortRows()
	return m
}

func stamp(g *grid.Grid, m *csr.Matrix[complex128], i int) {
	b := g.Buses[i]
	off := m.Rows[i]

	m.Cols[off] = i
	m.Vals[off] += b.ShuntY

	slot := make(map[int]int, len(b.AdjacentBuses()))
	for k, j := range b.AdjacentBuses() {
		m.Cols[off+1+k] = j
		slot[j] = off + 1 + k
	}

	for _, nb := range b.Neighbors {
		at := slot[nb.Bus]

		switch br := g.Branches[nb.Branch].(type) {
		case grid.LineBranch:
			y := 1 / br.Z()
			m.Vals[at] -= y
			m.Vals[off] += y + 0.5*br.ChargingY()

		case grid.TransformerBranch:
			y := 1 / br.Z()
			a := complex(1/real(br.TurnsRatio()), 0)
			m.Vals[at] -= a * y
			if b.Rating > g.Buses[nb.Bus].Rating {
				m.Vals[off] += complex(cmplx.Abs(a)*cmplx.Abs(a), 0) * y
			} else {
				m.Vals[off] += y
			}
		}
	}
}
