package protocol

import "math"

// Snapshot quantization steps. The wire trades precision for size: positions
// land within 0.01 px, angles within 0.001 rad, speed within 0.1. Round-trip
// consumers must compare against these tolerances, not exact equality.
const (
	PositionStep = 0.01
	AngleStep    = 0.001
	VelocityStep = 0.01
	SpeedStep    = 0.1
)

// Quantize rounds v to the nearest multiple of step.
func Quantize(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	return math.Round(v/step) * step
}
