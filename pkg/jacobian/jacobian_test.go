package jacobian

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/edp1096/toy-powerflow/pkg/admittance"
	"github.com/edp1096/toy-powerflow/pkg/csr"
	"github.com/edp1096/toy-powerflow/pkg/grid"
)

// fiveBus: 0 slack, 1 PV, 2..4 PQ; a transformer between 1 and 3, a shunt on 4,
// a parallel line pair between 2 and 4.
func fiveBus(t *testing.T) *grid.Grid {
	t.Helper()
	g := grid.New()
	for i, kv := range []float64{69, 69, 69, 13.8, 13.8} {
		if _, err := g.AddBus(i, kv); err != nil {
			t.Fatal(err)
		}
	}
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(g.SetSlack(0))
	must(g.AttachGenerator(grid.NewStaticGen(0, 0, 1.06)))
	must(g.AttachGenerator(grid.NewStaticGen(1, 1, 1.045)))
	must(g.AddShuntCap(grid.ShuntCap{ID: 0, BusID: 4, Y: 0.19i}))

	lines := []struct {
		a, b  int
		z, cy complex128
	}{
		{0, 1, complex(0.01938, 0.05917), 0.0528i},
		{0, 2, complex(0.05403, 0.22304), 0.0492i},
		{1, 2, complex(0.04699, 0.19797), 0.0438i},
		{2, 4, complex(0.06701, 0.17103), 0.0128i},
		{4, 2, complex(0.09, 0.2), 0},
		{3, 4, complex(0.12711, 0.27038), 0},
	}
	for i, l := range lines {
		_, err := g.AddLine(i, l.z, l.cy, l.a, l.b)
		must(err)
	}
	_, err := g.AddTransformer(0, complex(0, 0.20912), complex(0.978, 0), 1, 3)
	must(err)
	return g
}

func state(g *grid.Grid) csr.Glob[complex128] {
	x := g.FlatStart()
	// move away from the flat start so every derivative term is exercised
	for i := range x {
		if i == 0 {
			continue
		}
		x[i] = cmplx.Rect(cmplx.Abs(x[i])*(1-0.01*float64(i)), -0.03*float64(i))
	}
	return x
}

func TestStructure(t *testing.T) {
	g := fiveBus(t)
	y := admittance.Build(g)
	j, err := New(g, y, state(g))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	nonSlack, nonGen := 0, 0
	for _, b := range g.Buses {
		if !b.Slack {
			nonSlack++
		}
		if !b.HasGenerator {
			nonGen++
		}
	}
	if n := j.Info.Unknowns(); n != nonSlack+nonGen || n != 7 {
		t.Fatalf("Unknowns = %d, want %d", n, nonSlack+nonGen)
	}
	if j.M.Size() != j.Info.Unknowns() {
		t.Errorf("matrix is %dx%d, want %d", j.M.Size(), j.M.Size(), j.Info.Unknowns())
	}
	if j.M.NNZ() != j.Info.NonZeros() {
		t.Errorf("NNZ = %d, want %d", j.M.NNZ(), j.Info.NonZeros())
	}
	if err := j.M.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	wantAngle := []int{grid.Unassigned, 0, 1, 2, 3}
	wantMag := []int{grid.Unassigned, grid.Unassigned, 4, 5, 6}
	for i, b := range g.Buses {
		if b.AngleIndex != wantAngle[i] || b.MagnitudeIndex != wantMag[i] {
			t.Errorf("bus %d indices = (%d,%d), want (%d,%d)",
				i, b.AngleIndex, b.MagnitudeIndex, wantAngle[i], wantMag[i])
		}
	}

	// P row of bus 1 (PV): angles of 1, 2, 3 and magnitudes of 2, 3.
	wantCols := []int{0, 1, 2, 4, 5}
	got := j.M.Cols[j.M.Rows[0]:j.M.Rows[1]]
	if len(got) != len(wantCols) {
		t.Fatalf("row 0 columns = %v, want %v", got, wantCols)
	}
	for k := range wantCols {
		if got[k] != wantCols[k] {
			t.Fatalf("row 0 columns = %v, want %v", got, wantCols)
		}
	}

	want := StructureInfo{N: [2]int{4, 3}}
	if j.Info.N != want.N {
		t.Errorf("N = %v, want %v", j.Info.N, want.N)
	}
}

func TestUpdateIsIdempotent(t *testing.T) {
	g := fiveBus(t)
	j, err := New(g, admittance.Build(g), state(g))
	if err != nil {
		t.Fatal(err)
	}

	first := append([]float64(nil), j.M.Vals...)
	if err := j.Update(); err != nil {
		t.Fatal(err)
	}
	for k, v := range j.M.Vals {
		if v != first[k] {
			t.Fatalf("Vals[%d] changed: %v -> %v", k, first[k], v)
		}
	}
}

// The assembled values must match a central finite difference of the
// calculated injections with respect to angle and relative magnitude.
func TestMatchesFiniteDifference(t *testing.T) {
	g := fiveBus(t)
	y := admittance.Build(g)
	x := state(g)
	j, err := New(g, y, x)
	if err != nil {
		t.Fatal(err)
	}

	const h = 1e-6
	const tol = 1e-6

	perturb := func(bus int, angle bool, d float64) csr.Glob[complex128] {
		p := x.Clone()
		m, a := cmplx.Abs(p[bus]), cmplx.Phase(p[bus])
		if angle {
			p[bus] = cmplx.Rect(m, a+d)
		} else {
			p[bus] = cmplx.Rect(m*(1+d), a)
		}
		return p
	}

	for _, col := range g.Buses {
		for _, angle := range []bool{true, false} {
			k := col.AngleIndex
			if !angle {
				k = col.MagnitudeIndex
			}
			if k == grid.Unassigned {
				continue
			}

			up := g.SCalc(perturb(col.ID, angle, h), y)
			dn := g.SCalc(perturb(col.ID, angle, -h), y)

			for _, row := range g.Buses {
				if row.AngleIndex != grid.Unassigned {
					fd := (real(up[row.ID]) - real(dn[row.ID])) / (2 * h)
					if got := j.M.Get(row.AngleIndex, k); math.Abs(got-fd) > tol*math.Max(1, math.Abs(fd)) {
						t.Errorf("dP%d/d%d = %.9f, finite difference %.9f", row.ID, k, got, fd)
					}
				}
				if row.MagnitudeIndex != grid.Unassigned {
					fd := (imag(up[row.ID]) - imag(dn[row.ID])) / (2 * h)
					if got := j.M.Get(row.MagnitudeIndex, k); math.Abs(got-fd) > tol*math.Max(1, math.Abs(fd)) {
						t.Errorf("dQ%d/d%d = %.9f, finite difference %.9f", row.ID, k, got, fd)
					}
				}
			}
		}
	}
}

func TestSetState(t *testing.T) {
	g := fiveBus(t)
	x := state(g)
	j, err := New(g, admittance.Build(g), x)
	if err != nil {
		t.Fatal(err)
	}
	if err := j.SetState(x[:3]); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("SetState(short) = %v, want ErrDimensionMismatch", err)
	}
	if _, err := New(g, j.Admittance(), x[:2]); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("New(short) = %v, want ErrDimensionMismatch", err)
	}

	before := append([]float64(nil), j.M.Vals...)
	flat := g.FlatStart()
	if err := j.SetState(flat); err != nil {
		t.Fatal(err)
	}
	if err := j.Update(); err != nil {
		t.Fatal(err)
	}
	changed := false
	for k, v := range j.M.Vals {
		if v != before[k] {
			changed = true
		}
	}
	if !changed {
		t.Error("Update after SetState left the values unchanged")
	}
}

func TestSlackOnlyGrid(t *testing.T) {
	g := grid.New()
	_, _ = g.AddBus(0, 69)
	_ = g.SetSlack(0)
	j, err := New(g, admittance.Build(g), g.FlatStart())
	if err != nil {
		t.Fatal(err)
	}
	if j.Info.Unknowns() != 0 || j.M.NNZ() != 0 {
		t.Errorf("info = %v", j.Info)
	}
}
