// Package grid models a power network as buses joined by lines and
// transformers, with generators, loads and shunt capacitors attached to buses.
//
// Buses are stored in an arena indexed by their id, so bus ids must be dense
// and contiguous from zero. Branches are stored in insertion order and are
// referenced from buses by index.
package grid

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/edp1096/toy-powerflow/pkg/csr"
)

var (
	ErrUnknownBus        = errors.New("grid: unknown bus")
	ErrBusID             = errors.New("grid: bus ids must be dense and contiguous")
	ErrGeneratorAttached = errors.New("grid: bus already has a generator")
	ErrSelfLoop          = errors.New("grid: branch connects a bus to itself")
)

// Unassigned marks a Jacobian index that has not been computed.
const Unassigned = -1

type BusType int

const (
	PQ BusType = iota
	PV
	Slack
)

func (t BusType) String() string {
	switch t {
	case Slack:
		return "slack"
	case PV:
		return "PV"
	}
	return "PQ"
}

// Neighbor is one incidence of a branch on a bus: the branch index in
// Grid.Branches and the bus at its far end.
type Neighbor struct {
	Branch int
	Bus    int
}

type Bus struct {
	ID           int
	Rating       float64    // kV
	ShuntY       complex128 // shunt admittance
	Neighbors    []Neighbor
	Slack        bool
	HasGenerator bool
	Generator    Generator
	Load         *Load

	// Jacobian unknown indices, Unassigned until the structure is computed.
	AngleIndex     int
	MagnitudeIndex int

	adjacent []int
}

// AdjacentBuses returns the distinct far-end buses in first-seen neighbor
// order. Parallel branches contribute one entry.
func (b *Bus) AdjacentBuses() []int { return b.adjacent }

type Grid struct {
	Buses     []*Bus
	Branches  []Branch
	ShuntCaps []ShuntCap // folded into Bus.ShuntY, kept for reporting
	Lines     int
	Xfmrs     int
}

func New() *Grid {
	return &Grid{}
}

func (g *Grid) bus(id int) (*Bus, error) {
	if id < 0 || id >= len(g.Buses) {
		return nil, fmt.Errorf("%w %d", ErrUnknownBus, id)
	}
	return g.Buses[id], nil
}

// Bus returns the bus with the given id or nil.
func (g *Grid) Bus(id int) *Bus {
	b, _ := g.bus(id)
	return b
}

// AddBus appends a bus. The id must equal the current bus count.
func (g *Grid) AddBus(id int, rating float64) (*Bus, error) {
	if id != len(g.Buses) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBusID, id, len(g.Buses))
	}
	b := &Bus{
		ID:             id,
		Rating:         rating,
		AngleIndex:     Unassigned,
		MagnitudeIndex: Unassigned,
	}
	g.Buses = append(g.Buses, b)
	return b, nil
}

// SetSlack marks a bus as the slack bus. The slack bus holds its voltage
// magnitude, so it is also flagged as a generator bus.
func (g *Grid) SetSlack(id int) error {
	b, err := g.bus(id)
	if err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	b.Slack = true
	b.HasGenerator = true
	return nil
}

func (g *Grid) AttachGenerator(gen Generator) error {
	b, err := g.bus(gen.BusID())
	if err != nil {
		return fmt.Errorf("generator %d: %w", gen.ID(), err)
	}
	if b.Generator != nil {
		return fmt.Errorf("generator %d: %w %d", gen.ID(), ErrGeneratorAttached, b.ID)
	}
	b.Generator = gen
	b.HasGenerator = true
	return nil
}

func (g *Grid) AttachLoad(busID int, l *Load) error {
	b, err := g.bus(busID)
	if err != nil {
		return fmt.Errorf("load %d: %w", l.ID, err)
	}
	b.Load = l
	return nil
}

// AddShuntCap adds the capacitor admittance to its bus shunt admittance.
func (g *Grid) AddShuntCap(sc ShuntCap) error {
	b, err := g.bus(sc.BusID)
	if err != nil {
		return fmt.Errorf("shunt capacitor %d: %w", sc.ID, err)
	}
	b.ShuntY += sc.Y
	g.ShuntCaps = append(g.ShuntCaps, sc)
	return nil
}

func (g *Grid) AddLine(id int, z, cy complex128, b0, b1 int) (*Line, error) {
	l := NewLine(id, z, cy)
	if err := g.connect(l, &l.BaseBranch, b0, b1); err != nil {
		return nil, fmt.Errorf("line %d: %w", id, err)
	}
	g.Lines++
	return l, nil
}

func (g *Grid) AddTransformer(id int, z, t complex128, b0, b1 int) (*Transformer, error) {
	x := NewTransformer(id, z, t)
	if err := g.connect(x, &x.BaseBranch, b0, b1); err != nil {
		return nil, fmt.Errorf("transformer %d: %w", id, err)
	}
	g.Xfmrs++
	return x, nil
}

// connect records br on both end buses. It is the only place neighbor
// relations are created.
func (g *Grid) connect(br Branch, base *BaseBranch, b0, b1 int) error {
	from, err := g.bus(b0)
	if err != nil {
		return err
	}
	to, err := g.bus(b1)
	if err != nil {
		return err
	}
	if b0 == b1 {
		return fmt.Errorf("%w %d", ErrSelfLoop, b0)
	}

	base.BusIDs = [2]int{b0, b1}
	idx := len(g.Branches)
	g.Branches = append(g.Branches, br)

	from.Neighbors = append(from.Neighbors, Neighbor{Branch: idx, Bus: b1})
	to.Neighbors = append(to.Neighbors, Neighbor{Branch: idx, Bus: b0})
	from.addAdjacent(b1)
	to.addAdjacent(b0)
	return nil
}

func (b *Bus) addAdjacent(id int) {
	for _, a := range b.adjacent {
		if a == id {
			return
		}
	}
	b.adjacent = append(b.adjacent, id)
}

func (g *Grid) Classify(id int) BusType {
	b := g.Buses[id]
	switch {
	case b.Slack:
		return Slack
	case b.HasGenerator:
		return PV
	}
	return PQ
}

// SlackBus returns the id of the first slack bus, or -1.
func (g *Grid) SlackBus() int {
	for _, b := range g.Buses {
		if b.Slack {
			return b.ID
		}
	}
	return -1
}

// FlatStart returns an initial state: generator buses at their setpoint
// magnitude (the slack bus at its full setpoint), every other bus at 1∠0.
func (g *Grid) FlatStart() csr.Glob[complex128] {
	x := csr.NewGlob[complex128](len(g.Buses))
	for i, b := range g.Buses {
		x[i] = 1
		if b.Generator == nil {
			continue
		}
		v := b.Generator.V(0)
		if b.Slack {
			x[i] = v
		} else {
			x[i] = complex(cmplx.Abs(v), 0)
		}
	}
	return x
}

// SCalc computes the complex power injected at every bus for state x and
// admittance matrix y.
func (g *Grid) SCalc(x csr.Glob[complex128], y *csr.Matrix[complex128]) csr.Glob[complex128] {
	s := csr.NewGlob[complex128](len(g.Buses))

	for i, b := range g.Buses {
		vi := cmplx.Abs(x[i])
		yii := y.Get(i, i)

		p := vi * vi * real(yii)
		q := -vi * vi * imag(yii)

		for _, j := range b.AdjacentBuses() {
			yij := y.Get(i, j)
			mag := vi * cmplx.Abs(x[j]) * cmplx.Abs(yij)
			ang := cmplx.Phase(yij) + cmplx.Phase(x[j]) - cmplx.Phase(x[i])
			p += mag * math.Cos(ang)
			q -= mag * math.Sin(ang)
		}
		s[i] = complex(p, q)
	}
	return s
}
