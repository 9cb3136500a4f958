// Package gridio reads grids and power schedules from JSON documents.
//
// A grid document is parsed into plain data first and only turned into a
// grid.Grid once every entity has been checked, so a failed load never
// returns a partially built grid.
package gridio

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/cmplx"
	"os"
	"sort"

	"github.com/edp1096/toy-powerflow/pkg/csr"
	"github.com/edp1096/toy-powerflow/pkg/grid"
)

// Counts holds the number of entities of each kind found in a document.
type Counts struct {
	Buses        int
	Generators   int
	ShuntCaps    int
	Lines        int
	Transformers int
}

type busData struct {
	ID     *int     `json:"id"`
	Rating *float64 `json:"rating"`
	Slack  bool     `json:"slack"`
}

type generatorData struct {
	ID    *int      `json:"id"`
	Model *string   `json:"model"`
	Bus   *int      `json:"bus"`
	V     []float64 `json:"v"` // magnitude, angle (rad)
}

type shuntCapData struct {
	ID  *int      `json:"id"`
	Bus *int      `json:"bus"`
	Y   []float64 `json:"y"`
}

type lineData struct {
	ID        *int      `json:"id"`
	Model     *string   `json:"model"`
	Z         []float64 `json:"z"`
	ChargingB float64   `json:"charging_b"`
	Buses     []int     `json:"buses"`
}

type transformerData struct {
	ID    *int      `json:"id"`
	Model *string   `json:"model"`
	Z     []float64 `json:"z"`
	T     []float64 `json:"t"`
	Buses []int     `json:"buses"`
}

type GridData struct {
	Buses        *[]busData         `json:"buses"`
	Generators   *[]generatorData   `json:"generators"`
	ShuntCaps    *[]shuntCapData    `json:"shunt_capacitors"`
	Lines        *[]lineData        `json:"lines"`
	Transformers *[]transformerData `json:"transformers"`
}

type document struct {
	Grid *GridData `json:"grid"`
}

type scheduleItem struct {
	ID *int      `json:"id"`
	P  []float64 `json:"p"` // P, Q
}

type scheduleDocument struct {
	Schedule *[]scheduleItem `json:"schedule"`
}

// Loader reads grid and schedule documents, reporting entity counts to
// Logger.
type Loader struct {
	Logger *slog.Logger
}

func (l *Loader) logger() *slog.Logger {
	if l == nil || l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// Load reads a grid document with the default logger.
func Load(r io.Reader) (*grid.Grid, Counts, error) {
	return (&Loader{}).Load(r)
}

func LoadFile(path string) (*grid.Grid, Counts, error) {
	return (&Loader{}).LoadFile(path)
}

func LoadSchedule(r io.Reader, busCount int) (csr.Glob[complex128], error) {
	return (&Loader{}).LoadSchedule(r, busCount)
}

func LoadScheduleFile(path string, busCount int) (csr.Glob[complex128], error) {
	return (&Loader{}).LoadScheduleFile(path, busCount)
}

func (l *Loader) LoadFile(path string) (*grid.Grid, Counts, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Counts{}, fmt.Errorf("unable to read grid file: %w", err)
	}
	defer f.Close()
	return l.Load(f)
}

func (l *Loader) Load(r io.Reader) (*grid.Grid, Counts, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, Counts{}, &FormatError{Path: "document", Reason: "invalid JSON", Err: err}
	}
	if doc.Grid == nil {
		return nil, Counts{}, &FormatError{Path: "document", Field: "grid", Reason: "the supplied document does not contain a grid"}
	}

	g, counts, err := doc.Grid.Build()
	if err != nil {
		return nil, Counts{}, err
	}
	l.logger().Info("loaded grid",
		"buses", counts.Buses,
		"generators", counts.Generators,
		"shunt_capacitors", counts.ShuntCaps,
		"lines", counts.Lines,
		"transformers", counts.Transformers)
	return g, counts, nil
}

func complexPair(v []float64, path, field string) (complex128, error) {
	if v == nil {
		return 0, missing(path, field)
	}
	if len(v) != 2 {
		return 0, &FormatError{Path: path, Field: field,
			Reason: fmt.Sprintf("complex numbers must be an array of two numbers, got %d", len(v))}
	}
	return complex(v[0], v[1]), nil
}

func busPair(v []int, path string) ([2]int, error) {
	if v == nil {
		return [2]int{}, missing(path, "buses")
	}
	if len(v) != 2 {
		return [2]int{}, &FormatError{Path: path, Field: "buses", Reason: fmt.Sprintf("want two bus ids, got %d", len(v))}
	}
	if v[0] == v[1] {
		return [2]int{}, &FormatError{Path: path, Field: "buses",
			Reason: fmt.Sprintf("both ends on bus %d", v[0]), Err: grid.ErrSelfLoop}
	}
	return [2]int{v[0], v[1]}, nil
}

func impedance(v []float64, path string) (complex128, error) {
	z, err := complexPair(v, path, "z")
	if err != nil {
		return 0, err
	}
	if z == 0 || cmplx.IsNaN(z) || cmplx.IsInf(z) {
		return 0, &FormatError{Path: path, Field: "z", Reason: fmt.Sprintf("impedance %v is not usable", z)}
	}
	return z, nil
}

func checkModel(m *string, want, path string) error {
	if m == nil {
		return missing(path, "model")
	}
	if *m != want {
		return &FormatError{Path: path, Field: "model", Reason: fmt.Sprintf("unknown model type %q", *m)}
	}
	return nil
}

// Build validates the parsed document and assembles the grid.
func (d *GridData) Build() (*grid.Grid, Counts, error) {
	var counts Counts
	if d.Buses == nil {
		return nil, counts, missing("grid", "buses")
	}
	for _, f := range []struct {
		present bool
		name    string
	}{
		{d.Generators != nil, "generators"},
		{d.ShuntCaps != nil, "shunt_capacitors"},
		{d.Lines != nil, "lines"},
		{d.Transformers != nil, "transformers"},
	} {
		if !f.present {
			return nil, counts, missing("grid", f.name)
		}
	}

	g, err := d.buildBuses()
	if err != nil {
		return nil, counts, err
	}
	n := len(g.Buses)
	resolve := func(kind string, id, bus int) error {
		if bus < 0 || bus >= n {
			return &ModelIntegrityError{Kind: kind, ID: id, BusID: bus}
		}
		return nil
	}

	for i, gd := range *d.Generators {
		path := fmt.Sprintf("grid.generators[%d]", i)
		if gd.ID == nil {
			return nil, counts, missing(path, "id")
		}
		if err := checkModel(gd.Model, "static", path); err != nil {
			return nil, counts, err
		}
		if gd.Bus == nil {
			return nil, counts, missing(path, "bus")
		}
		v, err := complexPair(gd.V, path, "v")
		if err != nil {
			return nil, counts, err
		}
		if err := resolve("generator", *gd.ID, *gd.Bus); err != nil {
			return nil, counts, err
		}
		gen := grid.NewStaticGen(*gd.ID, *gd.Bus, cmplx.Rect(real(v), imag(v)))
		if err := g.AttachGenerator(gen); err != nil {
			return nil, counts, &ModelIntegrityError{Kind: "generator", ID: *gd.ID, BusID: *gd.Bus, Err: err}
		}
	}

	for i, sd := range *d.ShuntCaps {
		path := fmt.Sprintf("grid.shunt_capacitors[%d]", i)
		if sd.ID == nil {
			return nil, counts, missing(path, "id")
		}
		if sd.Bus == nil {
			return nil, counts, missing(path, "bus")
		}
		y, err := complexPair(sd.Y, path, "y")
		if err != nil {
			return nil, counts, err
		}
		if err := resolve("shunt capacitor", *sd.ID, *sd.Bus); err != nil {
			return nil, counts, err
		}
		if err := g.AddShuntCap(grid.ShuntCap{ID: *sd.ID, BusID: *sd.Bus, Y: y}); err != nil {
			return nil, counts, &ModelIntegrityError{Kind: "shunt capacitor", ID: *sd.ID, BusID: *sd.Bus, Err: err}
		}
	}

	for i, ld := range *d.Lines {
		path := fmt.Sprintf("grid.lines[%d]", i)
		if ld.ID == nil {
			return nil, counts, missing(path, "id")
		}
		if err := checkModel(ld.Model, "simple", path); err != nil {
			return nil, counts, err
		}
		z, err := impedance(ld.Z, path)
		if err != nil {
			return nil, counts, err
		}
		b, err := busPair(ld.Buses, path)
		if err != nil {
			return nil, counts, err
		}
		for _, bus := range b {
			if err := resolve("line", *ld.ID, bus); err != nil {
				return nil, counts, err
			}
		}
		if _, err := g.AddLine(*ld.ID, z, complex(0, ld.ChargingB), b[0], b[1]); err != nil {
			return nil, counts, &ModelIntegrityError{Kind: "line", ID: *ld.ID, BusID: b[0], Err: err}
		}
	}

	for i, td := range *d.Transformers {
		path := fmt.Sprintf("grid.transformers[%d]", i)
		if td.ID == nil {
			return nil, counts, missing(path, "id")
		}
		if err := checkModel(td.Model, "simple", path); err != nil {
			return nil, counts, err
		}
		z, err := impedance(td.Z, path)
		if err != nil {
			return nil, counts, err
		}
		t, err := complexPair(td.T, path, "t")
		if err != nil {
			return nil, counts, err
		}
		if real(t) == 0 {
			return nil, counts, &FormatError{Path: path, Field: "t", Reason: "turns ratio has a zero real part"}
		}
		b, err := busPair(td.Buses, path)
		if err != nil {
			return nil, counts, err
		}
		for _, bus := range b {
			if err := resolve("transformer", *td.ID, bus); err != nil {
				return nil, counts, err
			}
		}
		if _, err := g.AddTransformer(*td.ID, z, t, b[0], b[1]); err != nil {
			return nil, counts, &ModelIntegrityError{Kind: "transformer", ID: *td.ID, BusID: b[0], Err: err}
		}
	}

	counts = Counts{
		Buses:        n,
		Generators:   len(*d.Generators),
		ShuntCaps:    len(*d.ShuntCaps),
		Lines:        g.Lines,
		Transformers: g.Xfmrs,
	}
	return g, counts, nil
}

// buildBuses requires the bus ids to be exactly 0..N-1, in any order.
func (d *GridData) buildBuses() (*grid.Grid, error) {
	buses := *d.Buses
	order := make([]int, len(buses))
	for i, bd := range buses {
		path := fmt.Sprintf("grid.buses[%d]", i)
		if bd.ID == nil {
			return nil, missing(path, "id")
		}
		if bd.Rating == nil {
			return nil, missing(path, "rating")
		}
		if math.IsNaN(*bd.Rating) || math.IsInf(*bd.Rating, 0) {
			return nil, &FormatError{Path: path, Field: "rating", Reason: "rating is not finite"}
		}
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return *buses[order[a]].ID < *buses[order[b]].ID })

	g := grid.New()
	for want, i := range order {
		bd := buses[i]
		if *bd.ID != want {
			return nil, &FormatError{Path: fmt.Sprintf("grid.buses[%d]", i), Field: "id",
				Reason: fmt.Sprintf("bus ids must be dense from 0, found %d where %d was expected", *bd.ID, want)}
		}
		if _, err := g.AddBus(*bd.ID, *bd.Rating); err != nil {
			return nil, err
		}
		if bd.Slack {
			if err := g.SetSlack(*bd.ID); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

func (l *Loader) LoadScheduleFile(path string, busCount int) (csr.Glob[complex128], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read schedule file: %w", err)
	}
	defer f.Close()
	return l.LoadSchedule(f, busCount)
}

// LoadSchedule reads a schedule document into a vector with one entry per
// bus. Buses without an item are scheduled at zero.
func (l *Loader) LoadSchedule(r io.Reader, busCount int) (csr.Glob[complex128], error) {
	var doc scheduleDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, &FormatError{Path: "document", Reason: "invalid JSON", Err: err}
	}
	if doc.Schedule == nil {
		return nil, missing("document", "schedule")
	}

	s := csr.NewGlob[complex128](busCount)
	seen := make(map[int]bool, len(*doc.Schedule))
	for i, it := range *doc.Schedule {
		path := fmt.Sprintf("schedule[%d]", i)
		if it.ID == nil {
			return nil, missing(path, "id")
		}
		p, err := complexPair(it.P, path, "p")
		if err != nil {
			return nil, err
		}
		id := *it.ID
		if id < 0 || id >= busCount {
			return nil, &ModelIntegrityError{Kind: "schedule", ID: -1, Path: path, BusID: id}
		}
		if seen[id] {
			return nil, &FormatError{Path: path, Field: "id", Reason: fmt.Sprintf("bus %d scheduled twice", id)}
		}
		seen[id] = true
		s[id] = p
	}

	l.logger().Info("loaded schedule", "items", len(seen), "buses", busCount)
	return s, nil
}
