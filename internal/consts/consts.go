package consts

import "time"

const (
	THRESHOLD      = 0.001            // Newton-Raphson convergence threshold on the max mismatch (pu)
	MAX_ITERATIONS = 50               // Newton-Raphson step cap
	TIMEOUT        = 30 * time.Second // wall clock cap of one run
	BASE_MVA       = 100.0            // schedule base of the built-in cases (MVA)
)
