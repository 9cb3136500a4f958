package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/pkg/analysis"
	"github.com/edp1096/toy-powerflow/pkg/cases"
	"github.com/edp1096/toy-powerflow/pkg/gridio"
	"github.com/edp1096/toy-powerflow/pkg/matrix"
	"github.com/edp1096/toy-powerflow/pkg/report"
	"github.com/edp1096/toy-powerflow/pkg/util"
)

var (
	caseName   = flag.String("case", "", "built-in case ("+strings.Join(cases.Names(), ", ")+") instead of grid and schedule files")
	threshold  = flag.Float64("threshold", 0, "convergence threshold on the max mismatch (0: case default, else 0.001)")
	maxIter    = flag.Int("maxiter", consts.MAX_ITERATIONS, "maximum Newton-Raphson steps")
	timeout    = flag.Duration("timeout", consts.TIMEOUT, "run timeout (0 disables)")
	solverName = flag.String("solver", "sparse", "linear solver: sparse or dense")
	base       = flag.Float64("base", 0, "divide the loaded schedule by this base (e.g. 100 for MW/Mvar on 100 MVA)")
	csvPath    = flag.String("csv", "", "write the bus results as CSV to this file")
	plotPath   = flag.String("plot", "", "write the convergence chart to this file (.png, .svg)")
	crossCheck = flag.Bool("crosscheck", false, "solve with both backends and diff the results")
	dumpYBus   = flag.Bool("ybus", false, "print the admittance matrix as CSV")
	dumpJac    = flag.Bool("jacobian", false, "print the final Jacobian structure and CSR arrays")
	verbose    = flag.Bool("v", false, "log every Newton-Raphson step")
)

func loadInput(logger *slog.Logger) (*cases.Case, error) {
	if *caseName != "" {
		return cases.ByName(*caseName)
	}
	if flag.NArg() != 2 {
		return nil, fmt.Errorf("usage: pflow [flags] grid.json schedule.json | pflow -case ieee14")
	}

	loader := &gridio.Loader{Logger: logger}
	g, _, err := loader.LoadFile(flag.Arg(0))
	if err != nil {
		return nil, fmt.Errorf("loading grid: %w", err)
	}
	sched, err := loader.LoadScheduleFile(flag.Arg(1), len(g.Buses))
	if err != nil {
		return nil, fmt.Errorf("loading schedule: %w", err)
	}
	if *base > 0 {
		sched.Scale(complex(*base, 0))
	}

	return &cases.Case{
		Name:      flag.Arg(0),
		Grid:      g,
		State:     g.FlatStart(),
		Schedule:  sched,
		Threshold: consts.THRESHOLD,
	}, nil
}

func solve(c *cases.Case, name string, logger *slog.Logger) (*analysis.Result, *analysis.PowerFlow, error) {
	s, err := matrix.New(name)
	if err != nil {
		return nil, nil, err
	}

	thresh := c.Threshold
	if *threshold > 0 {
		thresh = *threshold
	}

	pf, err := analysis.NewPowerFlow(c.Grid, c.State, c.Schedule,
		analysis.WithThreshold(thresh),
		analysis.WithMaxIterations(*maxIter),
		analysis.WithTimeout(*timeout),
		analysis.WithSolver(s),
		analysis.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}
	res, err := pf.Run(context.Background())
	return res, pf, err
}

func renderCSV(res *analysis.Result) string {
	var buf bytes.Buffer
	if err := report.CSV(&buf, res); err != nil {
		log.Fatalf("Error rendering results: %v", err)
	}
	return buf.String()
}

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// 1. Load grid and schedule
	c, err := loadInput(logger)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("[1] %s: %d buses, %d lines, %d transformers\n", c.Name, len(c.Grid.Buses), c.Grid.Lines, c.Grid.Xfmrs)
	if islands := c.Grid.Islands(); len(islands) > 0 {
		fmt.Printf("    buses without a path to the slack bus: %v\n", islands)
	}

	// 2. Solve
	res, pf, err := solve(c, *solverName, logger)
	if pf != nil && *dumpYBus {
		fmt.Println("\n[Y-bus]")
		if err := pf.Admittance().CSV(os.Stdout); err != nil {
			log.Fatalf("Error writing Y-bus: %v", err)
		}
	}
	if pf != nil && *dumpJac {
		fmt.Println("\n[Jacobian]")
		fmt.Println(pf.Jacobian().Dump())
	}
	if err != nil {
		log.Fatalf("Power flow failed: %v", err)
	}

	// 3. Report
	fmt.Printf("\n[2] Solved with the %s backend in %v\n\n", *solverName, res.Elapsed)
	if err := report.Text(os.Stdout, res); err != nil {
		log.Fatalf("Error writing results: %v", err)
	}
	slack := c.Grid.SlackBus()
	fmt.Printf("\nSlack injection %s\n", util.FormatPower(res.S[slack], consts.BASE_MVA))

	if *csvPath != "" {
		if err := os.WriteFile(*csvPath, []byte(renderCSV(res)), 0o644); err != nil {
			log.Fatalf("Error writing CSV: %v", err)
		}
		fmt.Printf("Results written to %s\n", *csvPath)
	}
	if *plotPath != "" {
		if err := report.Chart(*plotPath, res.History); err != nil {
			log.Fatalf("Error writing chart: %v", err)
		}
		fmt.Printf("Convergence chart written to %s\n", *plotPath)
	}

	// 4. Cross-check against the other backend
	if *crossCheck {
		other := "dense"
		if *solverName == "dense" {
			other = "sparse"
		}
		res2, _, err := solve(c, other, logger)
		if err != nil {
			log.Fatalf("Cross-check with %s failed: %v", other, err)
		}
		diff, err := report.Diff(*solverName, renderCSV(res), other, renderCSV(res2))
		if err != nil {
			log.Fatalf("Error diffing results: %v", err)
		}
		if diff == "" {
			fmt.Printf("\n[3] %s and %s backends agree\n", *solverName, other)
		} else {
			fmt.Printf("\n[3] %s and %s backends differ:\n%s", *solverName, other, diff)
		}
	}
}
