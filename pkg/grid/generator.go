package grid

// Generator holds the voltage of the bus it is attached to.
type Generator interface {
	ID() int
	BusID() int
	V(t float64) complex128 // voltage setpoint at time t
}

type BaseGenerator struct {
	Id  int
	Bus int
}

func (g *BaseGenerator) ID() int { return g.Id }

func (g *BaseGenerator) BusID() int { return g.Bus }

// StaticGen holds a constant complex voltage.
type StaticGen struct {
	BaseGenerator
	Setpoint complex128
}

func NewStaticGen(id, busID int, v complex128) *StaticGen {
	return &StaticGen{
		BaseGenerator: BaseGenerator{Id: id, Bus: busID},
		Setpoint:      v,
	}
}

func (g *StaticGen) V(float64) complex128 { return g.Setpoint }

// Load is a constant-power demand attached to a bus. It is informational: the
// solver only sees the scheduled injections.
type Load struct {
	ID int
	S  complex128
}

// ShuntCap is a shunt admittance attached to a bus. Adding one folds it into
// the bus shunt admittance; it is not kept afterwards.
type ShuntCap struct {
	ID    int
	BusID int
	Y     complex128
}
