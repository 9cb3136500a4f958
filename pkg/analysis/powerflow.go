// Package analysis runs the Newton-Raphson power flow.
//
// A PowerFlow owns the Y-bus, the Jacobian and the voltage state of one grid.
// Each Step solves J·dX = dS, applies the correction to the state and
// recomputes the mismatch; Run repeats until the largest mismatch is within
// the threshold, bounded by an iteration cap and a deadline.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"slices"
	"time"

	"github.com/edp1096/toy-powerflow/pkg/admittance"
	"github.com/edp1096/toy-powerflow/pkg/csr"
	"github.com/edp1096/toy-powerflow/pkg/grid"
	"github.com/edp1096/toy-powerflow/pkg/jacobian"
	"github.com/edp1096/toy-powerflow/pkg/matrix"
)

var (
	ErrNotConverged      = errors.New("analysis: power flow did not converge")
	ErrTimeout           = errors.New("analysis: power flow timed out")
	ErrDimensionMismatch = errors.New("analysis: vector length does not match bus count")
	ErrNoSlack           = errors.New("analysis: grid has no slack bus")
)

// RunError carries the last valid state of a run that did not converge.
type RunError struct {
	Steps       int
	State       csr.Glob[complex128]
	MaxMismatch float64
	Err         error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("power flow stopped after %d steps (max mismatch %.3g): %v", e.Steps, e.MaxMismatch, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Iteration records the largest mismatch and correction after one step.
type Iteration struct {
	Step          int
	MaxMismatch   float64
	MaxCorrection float64
}

type Result struct {
	Grid        *grid.Grid
	State       csr.Glob[complex128] // bus voltages
	S           csr.Glob[complex128] // calculated bus injections
	Steps       int
	MaxMismatch float64
	History     []Iteration
	Elapsed     time.Duration
}

type PowerFlow struct {
	grid *grid.Grid
	y    *csr.Matrix[complex128]
	j    *jacobian.Jacobian

	state csr.Glob[complex128]
	sSch  csr.Glob[complex128]
	sCalc csr.Glob[complex128]
	dSch  csr.Glob[complex128]
	dS    []float64
	dX    []float64

	steps   int
	history []Iteration
	cfg     config
}

// NewPowerFlow prepares a run on g from the initial state toward the
// scheduled injections sSch. Both vectors need one entry per bus and are
// copied.
func NewPowerFlow(g *grid.Grid, state, sSch csr.Glob[complex128], opts ...Option) (*PowerFlow, error) {
	n := len(g.Buses)
	if len(state) != n {
		return nil, fmt.Errorf("%w: state has %d entries for %d buses", ErrDimensionMismatch, len(state), n)
	}
	if len(sSch) != n {
		return nil, fmt.Errorf("%w: schedule has %d entries for %d buses", ErrDimensionMismatch, len(sSch), n)
	}
	if g.SlackBus() < 0 {
		return nil, ErrNoSlack
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.solver == nil {
		cfg.solver = matrix.NewSparseSolver()
	}

	pf := &PowerFlow{
		grid:  g,
		y:     admittance.Build(g),
		state: state.Clone(),
		sSch:  sSch.Clone(),
		dSch:  csr.NewGlob[complex128](n),
		cfg:   cfg,
	}

	j, err := jacobian.New(g, pf.y, pf.state)
	if err != nil {
		return nil, fmt.Errorf("building jacobian: %w", err)
	}
	pf.j = j
	pf.dS = make([]float64, j.Info.Unknowns())
	pf.dX = make([]float64, j.Info.Unknowns())

	if islands := g.Islands(); len(islands) > 0 {
		cfg.logger.Warn("buses not connected to the slack bus", "islands", islands)
	}
	cfg.logger.Debug("jacobian structure", "info", j.Info.String())

	pf.calcSCalc()
	pf.calcDSch()
	pf.calcDS()
	return pf, nil
}

func (pf *PowerFlow) calcSCalc() {
	pf.sCalc = pf.grid.SCalc(pf.state, pf.y)
}

func (pf *PowerFlow) calcDSch() {
	for i := range pf.dSch {
		pf.dSch[i] = pf.sSch[i] - pf.sCalc[i]
	}
}

func (pf *PowerFlow) calcDS() {
	for i, b := range pf.grid.Buses {
		if b.AngleIndex != grid.Unassigned {
			pf.dS[b.AngleIndex] = real(pf.dSch[i])
		}
		if b.MagnitudeIndex != grid.Unassigned {
			pf.dS[b.MagnitudeIndex] = imag(pf.dSch[i])
		}
	}
}

// updateState applies dX: the slack bus is untouched, generator buses move
// their angle only and the rest also scale their magnitude by (1 + dX).
func (pf *PowerFlow) updateState() {
	for i, b := range pf.grid.Buses {
		if b.AngleIndex == grid.Unassigned {
			continue
		}
		v := pf.state[i]
		mag, ang := cmplx.Abs(v), cmplx.Phase(v)+pf.dX[b.AngleIndex]
		if b.MagnitudeIndex != grid.Unassigned {
			mag += mag * pf.dX[b.MagnitudeIndex]
		}
		pf.state[i] = cmplx.Rect(mag, ang)
	}
}

// Step performs one Newton-Raphson iteration. A failed solve or Jacobian
// update leaves the state, mismatch and Jacobian as they were.
func (pf *PowerFlow) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dX, err := pf.cfg.solver.Solve(pf.j.M, pf.dS)
	if err != nil {
		return fmt.Errorf("step %d: %w", pf.steps+1, err)
	}

	prevState, prevDX, prevJ := pf.state.Clone(), slices.Clone(pf.dX), slices.Clone(pf.j.M.Vals)
	copy(pf.dX, dX)

	pf.updateState()
	pf.calcSCalc()
	pf.calcDSch()
	pf.calcDS()

	if err := pf.j.Update(); err != nil {
		// the jacobian holds pf.state, so restore in place
		copy(pf.state, prevState)
		copy(pf.dX, prevDX)
		copy(pf.j.M.Vals, prevJ)
		pf.calcSCalc()
		pf.calcDSch()
		pf.calcDS()
		return fmt.Errorf("step %d: %w", pf.steps+1, err)
	}

	pf.steps++
	it := Iteration{Step: pf.steps, MaxMismatch: pf.MaxMismatch(), MaxCorrection: pf.MaxCorrection()}
	pf.history = append(pf.history, it)
	pf.cfg.logger.Debug("newton step", "step", it.Step, "max_mismatch", it.MaxMismatch, "max_correction", it.MaxCorrection)
	return nil
}

// Run takes one step, then keeps stepping while the largest mismatch exceeds
// the threshold.
func (pf *PowerFlow) Run(ctx context.Context) (*Result, error) {
	if pf.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pf.cfg.timeout)
		defer cancel()
	}

	start := time.Now()
	pf.steps = 0
	pf.history = nil

	for {
		if pf.cfg.maxIter > 0 && pf.steps >= pf.cfg.maxIter {
			return nil, pf.fail(fmt.Errorf("%w in %d iterations", ErrNotConverged, pf.steps))
		}
		if err := pf.Step(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w after %v: %w", ErrTimeout, time.Since(start).Round(time.Millisecond), err)
			}
			return nil, pf.fail(err)
		}
		if pf.MaxMismatch() <= pf.cfg.threshold {
			break
		}
	}

	res := &Result{
		Grid:        pf.grid,
		State:       pf.State(),
		S:           pf.SCalc(),
		Steps:       pf.steps,
		MaxMismatch: pf.MaxMismatch(),
		History:     pf.History(),
		Elapsed:     time.Since(start),
	}
	pf.cfg.logger.Info("power flow converged", "steps", res.Steps, "max_mismatch", res.MaxMismatch, "elapsed", res.Elapsed)
	return res, nil
}

func (pf *PowerFlow) fail(err error) *RunError {
	re := &RunError{
		Steps:       pf.steps,
		State:       pf.State(),
		MaxMismatch: pf.MaxMismatch(),
		Err:         err,
	}
	pf.cfg.logger.Error("power flow failed", "steps", re.Steps, "max_mismatch", re.MaxMismatch, "err", err)
	return re
}

func maxAbs(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		m = math.Max(m, math.Abs(x))
	}
	return m
}

// MaxMismatch is the largest absolute entry of the mismatch vector dS.
func (pf *PowerFlow) MaxMismatch() float64 { return maxAbs(pf.dS) }

// MaxCorrection is the largest absolute entry of the last correction dX.
func (pf *PowerFlow) MaxCorrection() float64 { return maxAbs(pf.dX) }

func (pf *PowerFlow) State() csr.Glob[complex128] { return pf.state.Clone() }

func (pf *PowerFlow) SCalc() csr.Glob[complex128] { return pf.sCalc.Clone() }

func (pf *PowerFlow) Steps() int { return pf.steps }

func (pf *PowerFlow) History() []Iteration { return append([]Iteration(nil), pf.history...) }

func (pf *PowerFlow) Jacobian() *jacobian.Jacobian { return pf.j }

func (pf *PowerFlow) Admittance() *csr.Matrix[complex128] { return pf.y }
