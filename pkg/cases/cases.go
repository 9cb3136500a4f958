// Package cases holds built-in grids with their initial state and schedule.
package cases

import (
	"fmt"
	"sort"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/pkg/csr"
	"github.com/edp1096/toy-powerflow/pkg/grid"
)

type Case struct {
	Name      string
	Grid      *grid.Grid
	State     csr.Glob[complex128]
	Schedule  csr.Glob[complex128] // pu
	Threshold float64
}

var builders = map[string]func() (*Case, error){
	"ieee14": IEEE14,
	"twobus": TwoBus,
}

// Names lists the built-in cases.
func Names() []string {
	names := make([]string, 0, len(builders))
	for n := range builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func ByName(name string) (*Case, error) {
	b, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown case %q (have %v)", name, Names())
	}
	return b()
}

type lineData struct {
	a, b int
	r, x float64
	bc   float64 // total charging susceptance
}

type xfmrData struct {
	a, b int
	x    float64
	tap  float64
}

// IEEE14 is the IEEE 14-bus test system. The schedule is given in MW/Mvar
// and scaled to per unit on a 100 MVA base.
func IEEE14() (*Case, error) {
	ratings := []float64{69, 69, 69, 69, 69, 13, 18, 13.8, 13.8, 13.8, 13.8, 13.8, 13.8, 13.8}
	gens := map[int]float64{0: 1.06, 1: 1.045, 2: 1.01, 5: 1.07, 7: 1.09}

	lines := []lineData{
		{0, 1, 0.01938, 0.05917, 0.0528},
		{0, 4, 0.05403, 0.22304, 0.0492},
		{1, 2, 0.04699, 0.19797, 0.0438},
		{1, 3, 0.05811, 0.17632, 0.0340},
		{1, 4, 0.05695, 0.17388, 0.0346},
		{2, 3, 0.06701, 0.17103, 0.0128},
		{4, 3, 0.01335, 0.04211, 0},
		{5, 10, 0.09498, 0.19890, 0},
		{5, 11, 0.12291, 0.25581, 0},
		{5, 12, 0.06615, 0.13027, 0},
		{8, 9, 0.03181, 0.08450, 0},
		{8, 13, 0.12711, 0.27038, 0},
		{9, 10, 0.08205, 0.19207, 0},
		{11, 12, 0.22092, 0.19989, 0},
		{12, 13, 0.17093, 0.34802, 0},
	}
	xfmrs := []xfmrData{
		{3, 6, 0.209120, 0.978},
		{3, 8, 0.556180, 0.969},
		{4, 5, 0.252020, 0.932},
		{7, 6, 0.176150, 1.0},
		{6, 8, 0.110011, 1.0},
	}
	sched := []complex128{
		complex(232.4, -16.9),
		complex(18.3, 29.7),
		complex(-94.2, 4.4),
		complex(-47.8, 3.9),
		complex(-7.6, -1.6),
		complex(-11.2, 4.7),
		complex(0, 0),
		complex(0, 17.4),
		complex(-29.5, -16.6),
		complex(-9, -5.8),
		complex(-3.5, -1.8),
		complex(-6.1, -1.6),
		complex(-13.5, -5.8),
		complex(-14.9, -5),
	}

	g := grid.New()
	for i, kv := range ratings {
		if _, err := g.AddBus(i, kv); err != nil {
			return nil, err
		}
	}
	if err := g.SetSlack(0); err != nil {
		return nil, err
	}
	for id, bus := range []int{0, 1, 2, 5, 7} {
		if err := g.AttachGenerator(grid.NewStaticGen(id, bus, complex(gens[bus], 0))); err != nil {
			return nil, err
		}
	}
	if err := g.AddShuntCap(grid.ShuntCap{ID: 0, BusID: 8, Y: complex(0, 0.19)}); err != nil {
		return nil, err
	}
	for i, l := range lines {
		if _, err := g.AddLine(i, complex(l.r, l.x), complex(0, l.bc), l.a, l.b); err != nil {
			return nil, err
		}
	}
	for i, t := range xfmrs {
		if _, err := g.AddTransformer(i, complex(0, t.x), complex(t.tap, 1), t.a, t.b); err != nil {
			return nil, err
		}
	}

	s := csr.Glob[complex128](sched).Scale(consts.BASE_MVA)
	for i := range s {
		if real(s[i]) < 0 {
			if err := g.AttachLoad(i, &grid.Load{ID: i, S: -s[i]}); err != nil {
				return nil, err
			}
		}
	}

	return &Case{
		Name:      "ieee14",
		Grid:      g,
		State:     g.FlatStart(),
		Schedule:  s,
		Threshold: 5e-6,
	}, nil
}

// TwoBus is a slack bus feeding one PQ load through a single line.
func TwoBus() (*Case, error) {
	g := grid.New()
	for i := range 2 {
		if _, err := g.AddBus(i, 69); err != nil {
			return nil, err
		}
	}
	if err := g.SetSlack(0); err != nil {
		return nil, err
	}
	if err := g.AttachGenerator(grid.NewStaticGen(0, 0, 1)); err != nil {
		return nil, err
	}
	if _, err := g.AddLine(0, complex(0.02, 0.06), 0, 0, 1); err != nil {
		return nil, err
	}
	s := csr.Glob[complex128]{0, complex(-0.1, -0.05)}
	if err := g.AttachLoad(1, &grid.Load{ID: 0, S: -s[1]}); err != nil {
		return nil, err
	}

	return &Case{
		Name:      "twobus",
		Grid:      g,
		State:     g.FlatStart(),
		Schedule:  s,
		Threshold: 1e-6,
	}, nil
}
