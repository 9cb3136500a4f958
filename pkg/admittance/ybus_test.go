package admittance

import (
	"bytes"
	"math/cmplx"
	"testing"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/edp1096/toy-powerflow/pkg/grid"
)

func threeBus(t *testing.T) *grid.Grid {
	t.Helper()
	g := grid.New()
	for i, kv := range []float64{69, 69, 13.8} {
		if _, err := g.AddBus(i, kv); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := g.AddLine(0, 0.5, 0.2i, 0, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddTransformer(0, 0.25i, 0.5, 1, 2); err != nil {
		t.Fatal(err)
	}
	if err := g.AddShuntCap(grid.ShuntCap{ID: 0, BusID: 2, Y: 0.5i}); err != nil {
		t.Fatal(err)
	}
	return g
}

func TestBuildGolden(t *testing.T) {
	y := Build(threeBus(t))
	if err := y.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var buf bytes.Buffer
	if err := y.CSV(&buf); err != nil {
		t.Fatal(err)
	}
	want := "(2,0.1),(-2,0),(0,0)\n" +
		"(-2,0),(2,-15.9),(0,8)\n" +
		"(0,0),(0,8),(0,-3.5)\n"
	if got := buf.String(); got != want {
		diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(want),
			B:        difflib.SplitLines(got),
			FromFile: "want",
			ToFile:   "got",
			Context:  1,
		})
		t.Errorf("Y-bus CSV mismatch:\n%s", diff)
	}
}

func TestCapacityAndLayout(t *testing.T) {
	g := threeBus(t)
	y := Build(g)

	if y.Size() != 3 {
		t.Fatalf("Size = %d", y.Size())
	}
	if y.NNZ() != 7 || Capacity(g) != 7 {
		t.Errorf("NNZ = %d, Capacity = %d, want 7", y.NNZ(), Capacity(g))
	}
	want := []int{0, 2, 5, 7}
	for i, r := range want {
		if y.Rows[i] != r {
			t.Errorf("Rows[%d] = %d, want %d", i, y.Rows[i], r)
		}
	}
}

func TestSymmetryByConstruction(t *testing.T) {
	g := grid.New()
	ratings := []float64{132, 132, 33, 33}
	for i, kv := range ratings {
		_, _ = g.AddBus(i, kv)
	}
	type branch struct {
		a, b   int
		z, cy  complex128
		t      complex128
		isLine bool
	}
	branches := []branch{
		{a: 0, b: 1, z: complex(0.02, 0.06), cy: 0.03i, isLine: true},
		{a: 1, b: 2, z: complex(0, 0.2), t: complex(0.95, 0.1)},
		{a: 3, b: 1, z: complex(0.001, 0.15), t: complex(1.02, 0)},
		{a: 2, b: 3, z: complex(0.1, 0.3), isLine: true},
	}
	for i, br := range branches {
		var err error
		if br.isLine {
			_, err = g.AddLine(i, br.z, br.cy, br.a, br.b)
		} else {
			_, err = g.AddTransformer(i, br.z, br.t, br.a, br.b)
		}
		if err != nil {
			t.Fatal(err)
		}
	}

	y := Build(g)
	if err := y.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	const tol = 1e-12
	for _, br := range branches {
		ab, err := y.At(br.a, br.b)
		if err != nil {
			t.Fatalf("Y[%d][%d]: %v", br.a, br.b, err)
		}
		ba, err := y.At(br.b, br.a)
		if err != nil {
			t.Fatalf("Y[%d][%d]: %v", br.b, br.a, err)
		}

		want := -1 / br.z
		if !br.isLine {
			want = -complex(1/real(br.t), 0) / br.z
		}
		if cmplx.Abs(ab-want) > tol || cmplx.Abs(ba-want) > tol {
			t.Errorf("branch %d-%d: Y = %v / %v, want %v", br.a, br.b, ab, ba, want)
		}
	}

	// Diagonals: bus 1 is the high side of both transformers.
	yl := 1 / branches[0].z
	yt1 := 1 / branches[1].z
	yt2 := 1 / branches[2].z
	a1 := 1 / real(branches[1].t)
	wantDiag := []complex128{
		yl + 0.5*branches[0].cy,
		yl + 0.5*branches[0].cy + complex(a1*a1, 0)*yt1 + yt2*complex(1/(1.02*1.02), 0),
		yt1 + 1/branches[3].z,
		yt2 + 1/branches[3].z,
	}
	for i, w := range wantDiag {
		if d := y.Get(i, i); cmplx.Abs(d-w) > tol {
			t.Errorf("Y[%d][%d] = %v, want %v", i, i, d, w)
		}
	}
}

func TestParallelBranchesShareSlot(t *testing.T) {
	g := grid.New()
	_, _ = g.AddBus(0, 69)
	_, _ = g.AddBus(1, 69)
	_, _ = g.AddLine(0, 0.5, 0, 0, 1)
	_, _ = g.AddLine(1, 0.25, 0, 1, 0)

	y := Build(g)
	if err := y.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if y.NNZ() != 4 {
		t.Errorf("NNZ = %d, want 4", y.NNZ())
	}
	if got := y.Get(0, 1); got != -6 {
		t.Errorf("Y[0][1] = %v, want -6", got)
	}
	if got := y.Get(1, 1); got != 6 {
		t.Errorf("Y[1][1] = %v, want 6", got)
	}
}
