package grid

type BranchKind int

const (
	KindLine BranchKind = iota
	KindTransformer
)

func (k BranchKind) String() string {
	switch k {
	case KindLine:
		return "line"
	case KindTransformer:
		return "transformer"
	}
	return "unknown"
}

// Branch interconnects two buses.
type Branch interface {
	ID() int
	Kind() BranchKind
	Z() complex128 // series impedance
	Buses() [2]int
}

// LineBranch is a branch with shunt charging.
type LineBranch interface {
	Branch
	ChargingY() complex128
}

// TransformerBranch is a branch with a complex turns ratio.
type TransformerBranch interface {
	Branch
	TurnsRatio() complex128
}

type BaseBranch struct {
	Id     int
	BusIDs [2]int
}

func (b *BaseBranch) ID() int { return b.Id }

func (b *BaseBranch) Buses() [2]int { return b.BusIDs }

// Line is a branch with a series impedance and a total charging admittance,
// half of which is seen at each end.
type Line struct {
	BaseBranch
	Impedance complex128
	Charging  complex128
}

func NewLine(id int, z, cy complex128) *Line {
	return &Line{
		BaseBranch: BaseBranch{Id: id},
		Impedance:  z,
		Charging:   cy,
	}
}

func (l *Line) Kind() BranchKind { return KindLine }

func (l *Line) Z() complex128 { return l.Impedance }

func (l *Line) ChargingY() complex128 { return l.Charging }

// Transformer is a branch with a series impedance and a complex turns ratio.
type Transformer struct {
	BaseBranch
	Impedance complex128
	Ratio     complex128
}

func NewTransformer(id int, z, t complex128) *Transformer {
	return &Transformer{
		BaseBranch: BaseBranch{Id: id},
		Impedance:  z,
		Ratio:      t,
	}
}

func (t *Transformer) Kind() BranchKind { return KindTransformer }

func (t *Transformer) Z() complex128 { return t.Impedance }

func (t *Transformer) TurnsRatio() complex128 { return t.Ratio }
