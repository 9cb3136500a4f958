package grid

import (
	"errors"
	"math/cmplx"
	"reflect"
	"testing"

	"github.com/edp1096/toy-powerflow/pkg/csr"
)

func chain(t *testing.T, n int) *Grid {
	t.Helper()
	g := New()
	for i := 0; i < n; i++ {
		if _, err := g.AddBus(i, 69); err != nil {
			t.Fatalf("AddBus(%d): %v", i, err)
		}
	}
	for i := 0; i+1 < n; i++ {
		if _, err := g.AddLine(i, complex(0.01, 0.05), 0, i, i+1); err != nil {
			t.Fatalf("AddLine(%d): %v", i, err)
		}
	}
	return g
}

func TestAddBusRequiresDenseIDs(t *testing.T) {
	g := New()
	if _, err := g.AddBus(1, 69); !errors.Is(err, ErrBusID) {
		t.Fatalf("AddBus(1) on empty grid = %v, want ErrBusID", err)
	}
	if _, err := g.AddBus(0, 69); err != nil {
		t.Fatalf("AddBus(0): %v", err)
	}
	b := g.Bus(0)
	if b.AngleIndex != Unassigned || b.MagnitudeIndex != Unassigned {
		t.Errorf("indices = %d,%d, want unassigned", b.AngleIndex, b.MagnitudeIndex)
	}
	if g.Bus(3) != nil {
		t.Error("Bus(3) should be nil")
	}
}

func TestConnectIsBidirectional(t *testing.T) {
	g := chain(t, 3)

	want := map[int][]Neighbor{
		0: {{Branch: 0, Bus: 1}},
		1: {{Branch: 0, Bus: 0}, {Branch: 1, Bus: 2}},
		2: {{Branch: 1, Bus: 1}},
	}
	for id, nbrs := range want {
		if got := g.Buses[id].Neighbors; !reflect.DeepEqual(got, nbrs) {
			t.Errorf("bus %d neighbors = %v, want %v", id, got, nbrs)
		}
	}
	if ends := g.Branches[1].Buses(); ends != [2]int{1, 2} {
		t.Errorf("branch 1 ends = %v", ends)
	}
}

func TestParallelBranches(t *testing.T) {
	g := chain(t, 2)
	if _, err := g.AddTransformer(7, complex(0, 0.2), complex(0.98, 0), 1, 0); err != nil {
		t.Fatalf("AddTransformer: %v", err)
	}

	b0 := g.Buses[0]
	if len(b0.Neighbors) != 2 {
		t.Fatalf("bus 0 has %d neighbor entries, want 2", len(b0.Neighbors))
	}
	if got := b0.AdjacentBuses(); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("bus 0 adjacent = %v, want [1]", got)
	}
	if g.Lines != 1 || g.Xfmrs != 1 {
		t.Errorf("counts = %d lines, %d transformers", g.Lines, g.Xfmrs)
	}
	if k := g.Branches[1].Kind(); k != KindTransformer {
		t.Errorf("branch kind = %v", k)
	}
}

func TestReferenceErrors(t *testing.T) {
	g := chain(t, 2)

	if _, err := g.AddLine(9, 1, 0, 0, 5); !errors.Is(err, ErrUnknownBus) {
		t.Errorf("AddLine to bus 5 = %v, want ErrUnknownBus", err)
	}
	if _, err := g.AddTransformer(9, 1, 1, -1, 0); !errors.Is(err, ErrUnknownBus) {
		t.Errorf("AddTransformer from bus -1 = %v, want ErrUnknownBus", err)
	}
	if _, err := g.AddLine(9, 1, 0, 1, 1); !errors.Is(err, ErrSelfLoop) {
		t.Errorf("self loop = %v, want ErrSelfLoop", err)
	}
	if err := g.AttachGenerator(NewStaticGen(1, 4, 1)); !errors.Is(err, ErrUnknownBus) {
		t.Errorf("generator on bus 4 = %v, want ErrUnknownBus", err)
	}
	if err := g.AddShuntCap(ShuntCap{ID: 1, BusID: 2, Y: 1i}); !errors.Is(err, ErrUnknownBus) {
		t.Errorf("shunt cap on bus 2 = %v, want ErrUnknownBus", err)
	}
	if err := g.SetSlack(3); !errors.Is(err, ErrUnknownBus) {
		t.Errorf("SetSlack(3) = %v, want ErrUnknownBus", err)
	}
	if len(g.Branches) != 1 {
		t.Errorf("failed adds left %d branches", len(g.Branches))
	}

	if err := g.AttachGenerator(NewStaticGen(1, 1, 1)); err != nil {
		t.Fatalf("AttachGenerator: %v", err)
	}
	if err := g.AttachGenerator(NewStaticGen(2, 1, 1)); !errors.Is(err, ErrGeneratorAttached) {
		t.Errorf("second generator = %v, want ErrGeneratorAttached", err)
	}
}

func TestClassifyAndShunts(t *testing.T) {
	g := chain(t, 3)
	if err := g.SetSlack(0); err != nil {
		t.Fatal(err)
	}
	if err := g.AttachGenerator(NewStaticGen(0, 1, complex(1.05, 0))); err != nil {
		t.Fatal(err)
	}
	for _, sc := range []ShuntCap{{ID: 0, BusID: 2, Y: 0.1i}, {ID: 1, BusID: 2, Y: 0.09i}} {
		if err := g.AddShuntCap(sc); err != nil {
			t.Fatal(err)
		}
	}

	want := []BusType{Slack, PV, PQ}
	for i, bt := range want {
		if got := g.Classify(i); got != bt {
			t.Errorf("Classify(%d) = %v, want %v", i, got, bt)
		}
	}
	if !g.Buses[0].HasGenerator {
		t.Error("slack bus should count as a generator bus")
	}
	if got := g.Buses[2].ShuntY; cmplx.Abs(got-0.19i) > 1e-15 {
		t.Errorf("ShuntY = %v, want 0.19i", got)
	}
	if g.SlackBus() != 0 {
		t.Errorf("SlackBus = %d", g.SlackBus())
	}
}

func TestFlatStart(t *testing.T) {
	g := chain(t, 3)
	_ = g.SetSlack(0)
	_ = g.AttachGenerator(NewStaticGen(0, 0, cmplx.Rect(1.06, 0.1)))
	_ = g.AttachGenerator(NewStaticGen(1, 1, cmplx.Rect(1.045, 0.3)))

	x := g.FlatStart()
	want := []complex128{cmplx.Rect(1.06, 0.1), complex(1.045, 0), 1}
	for i := range want {
		if cmplx.Abs(x[i]-want[i]) > 1e-12 {
			t.Errorf("x[%d] = %v, want %v", i, x[i], want[i])
		}
	}
}

func TestSCalcMatchesComplexPower(t *testing.T) {
	g := chain(t, 2)
	z := complex(0.02, 0.06)
	y := 1 / z

	ybus := csr.New[complex128](2, 4)
	ybus.Rows = []int{0, 2, 4}
	ybus.Cols = []int{0, 1, 0, 1}
	ybus.Vals = []complex128{y, -y, -y, y}

	x := csr.Glob[complex128]{1, cmplx.Rect(0.98, -0.05)}
	s := g.SCalc(x, ybus)

	// S = V * conj(Y V)
	i := ybus.MulVec(x)
	for k := range x {
		want := x[k] * cmplx.Conj(i[k])
		if cmplx.Abs(s[k]-want) > 1e-12 {
			t.Errorf("S[%d] = %v, want %v", k, s[k], want)
		}
	}
}

func TestIslands(t *testing.T) {
	g := chain(t, 3)
	for _, id := range []int{3, 4, 5} {
		if _, err := g.AddBus(id, 13.8); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := g.AddLine(10, 1, 0, 4, 3); err != nil {
		t.Fatal(err)
	}
	_ = g.SetSlack(1)

	got := g.Islands()
	want := [][]int{{3, 4}, {5}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Islands = %v, want %v", got, want)
	}

	if islands := chain(t, 4).Islands(); len(islands) != 1 {
		t.Errorf("grid without slack: %d components, want 1", len(islands))
	}
}
