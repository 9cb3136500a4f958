package analysis

import (
	"log/slog"
	"time"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/pkg/matrix"
)

type config struct {
	threshold float64
	maxIter   int
	timeout   time.Duration
	solver    matrix.Solver
	logger    *slog.Logger
}

func defaultConfig() config {
	return config{
		threshold: consts.THRESHOLD,
		maxIter:   consts.MAX_ITERATIONS,
		timeout:   consts.TIMEOUT,
		logger:    slog.Default(),
	}
}

type Option func(*config)

// WithThreshold sets the largest mismatch accepted as converged.
func WithThreshold(t float64) Option {
	return func(c *config) { c.threshold = t }
}

// WithMaxIterations caps the number of steps Run takes. Zero or less removes
// the cap.
func WithMaxIterations(n int) Option {
	return func(c *config) { c.maxIter = n }
}

// WithTimeout bounds one Run. Zero disables the deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

func WithSolver(s matrix.Solver) Option {
	return func(c *config) { c.solver = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
