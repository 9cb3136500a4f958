package util

import (
	"fmt"
	"math"
	"math/cmplx"
)

func Deg(rad float64) float64 { return rad * 180 / math.Pi }

func Rad(deg float64) float64 { return deg * math.Pi / 180 }

// FormatValueFactor prints value with an SI prefix, e.g. 18.3e6 W -> "18.300 MW".
func FormatValueFactor(value float64, unit string) string {
	absValue := math.Abs(value)
	switch {
	case absValue >= 1e9:
		return fmt.Sprintf("%.3f G%s", value/1e9, unit)
	case absValue >= 1e6:
		return fmt.Sprintf("%.3f M%s", value/1e6, unit)
	case absValue >= 1e3:
		return fmt.Sprintf("%.3f k%s", value/1e3, unit)
	case absValue >= 1 || absValue == 0:
		return fmt.Sprintf("%.3f %s", value, unit)
	case absValue >= 1e-3:
		return fmt.Sprintf("%.3f m%s", value*1e3, unit)
	default:
		return fmt.Sprintf("%.3e %s", value, unit)
	}
}

// FormatPolar prints a phasor as magnitude and angle in degrees.
func FormatPolar(v complex128) string {
	return fmt.Sprintf("%s<%sdeg", FormatMagnitude(cmplx.Abs(v)), FormatPhase(Deg(cmplx.Phase(v))))
}

// FormatPower prints a per-unit complex power in physical units on baseMVA.
func FormatPower(s complex128, baseMVA float64) string {
	return fmt.Sprintf("P=%s Q=%s",
		FormatValueFactor(real(s)*baseMVA*1e6, "W"),
		FormatValueFactor(imag(s)*baseMVA*1e6, "var"))
}

func FormatMagnitude(value float64) string {
	if value >= 1000 || (value < 0.001 && value != 0) {
		return fmt.Sprintf("%8.2e", value) // "1.00e+03" or "5.43e-05"
	}
	return fmt.Sprintf("%8.4f", value) // "  1.0600"
}

func FormatPhase(value float64) string {
	return fmt.Sprintf("%8.3f", value) // " -14.221"
}
