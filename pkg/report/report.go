// Package report renders power-flow results as text, CSV and a convergence
// chart, and diffs two renderings.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"strconv"

	"github.com/pmezard/go-difflib/difflib"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/edp1096/toy-powerflow/pkg/analysis"
	"github.com/edp1096/toy-powerflow/pkg/util"
)

var ErrNoHistory = errors.New("report: no iterations to plot")

// Text writes a per-bus table of voltage magnitude, angle and calculated
// injection, all per unit.
func Text(w io.Writer, res *analysis.Result) error {
	if _, err := fmt.Fprintf(w, "Power flow converged in %d steps\nMax mismatch %.3e\n\n", res.Steps, res.MaxMismatch); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%4s  %-5s  %8s  %8s  %9s  %9s\n", "bus", "type", "|V|", "angle", "P", "Q"); err != nil {
		return err
	}
	for i, v := range res.State {
		s := res.S[i]
		_, err := fmt.Fprintf(w, "%4d  %-5s  %s  %s  %9.4f  %9.4f\n",
			i, res.Grid.Classify(i), util.FormatMagnitude(cmplx.Abs(v)), util.FormatPhase(util.Deg(cmplx.Phase(v))), real(s), imag(s))
		if err != nil {
			return err
		}
	}
	return nil
}

// CSV writes one record per bus under the header bus,type,vm,va_deg,p,q.
func CSV(w io.Writer, res *analysis.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"bus", "type", "vm", "va_deg", "p", "q"}); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	for i, v := range res.State {
		s := res.S[i]
		rec := []string{
			strconv.Itoa(i),
			res.Grid.Classify(i).String(),
			f(cmplx.Abs(v)),
			f(util.Deg(cmplx.Phase(v))),
			f(real(s)),
			f(imag(s)),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// floor keeps an exact zero mismatch on the chart.
const floor = 1e-16

// Chart plots log10 of the max mismatch and max correction per step. The
// image format follows the file extension (.png, .svg, .pdf, ...).
func Chart(path string, history []analysis.Iteration) error {
	if len(history) == 0 {
		return ErrNoHistory
	}

	mismatch := make(plotter.XYs, len(history))
	correction := make(plotter.XYs, len(history))
	for i, it := range history {
		mismatch[i].X = float64(it.Step)
		mismatch[i].Y = math.Log10(math.Max(it.MaxMismatch, floor))
		correction[i].X = float64(it.Step)
		correction[i].Y = math.Log10(math.Max(it.MaxCorrection, floor))
	}

	p := plot.New()
	p.Title.Text = "Newton-Raphson convergence"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "log10(max)"
	p.Add(plotter.NewGrid())

	ml, mp, err := plotter.NewLinePoints(mismatch)
	if err != nil {
		return fmt.Errorf("mismatch series: %w", err)
	}
	cl, cp, err := plotter.NewLinePoints(correction)
	if err != nil {
		return fmt.Errorf("correction series: %w", err)
	}
	cl.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(ml, mp, cl, cp)
	p.Legend.Add("mismatch", ml, mp)
	p.Legend.Add("correction", cl, cp)

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving chart: %w", err)
	}
	return nil
}

// Diff returns a unified diff of two renderings, empty when they match.
func Diff(nameA, a, nameB, b string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: nameA,
		ToFile:   nameB,
		Context:  2,
	})
}
