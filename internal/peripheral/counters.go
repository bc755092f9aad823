package peripheral

import "math"

const (
	cpsWheelSpeedMps = 5.0
)

// RollingCounters tracks the wrapping crank/wheel revolution counters
// the CPS characteristic reports. All fields wrap on overflow rather
// than saturate.
type RollingCounters struct {
	CrankRevs          uint16
	CrankEventTime1024 uint16
	WheelRevs          uint32
	WheelEventTime2048 uint16

	crankFrac float64
	wheelFrac float64
}

// Advance steps the counters forward by dt seconds given the current
// cadence, the fixed CPS wheel speed, and the given wheel circumference.
func (c *RollingCounters) Advance(dt, cadenceRPM, nowS, wheelCircM float64) {
	r := dt * cadenceRPM / 60.0
	c.crankFrac += r
	if whole := math.Floor(c.crankFrac); whole >= 1 {
		c.CrankRevs += uint16(whole)
		c.crankFrac -= whole
	}
	c.CrankEventTime1024 = uint16(int64(nowS*1024) & 0xFFFF)

	wheelRevsPerSec := cpsWheelSpeedMps / wheelCircM
	c.wheelFrac += dt * wheelRevsPerSec
	if whole := math.Floor(c.wheelFrac); whole >= 1 {
		c.WheelRevs += uint32(whole)
		c.wheelFrac -= whole
	}
	c.WheelEventTime2048 = uint16(int64(nowS*2048) & 0xFFFF)
}
