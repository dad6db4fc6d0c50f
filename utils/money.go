package utils

import "math"

// Round2 rounds x to 2 decimal places. Payment amounts and grade scores go
// through this before writing, so a retried submission compares equal to
// the value the original write stored.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
