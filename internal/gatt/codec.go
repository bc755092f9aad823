// Package gatt encodes and decodes the little-endian, bit-flagged GATT
// payloads used by the FTMS, CPS, and RSC characteristics.
package gatt

import "encoding/binary"

// Characteristic UUID suffixes, named the way the coordinator references
// them when calling transport.updateValue.
const (
	CharIndoorBikeData         = "2AD2"
	CharCPSMeasurement         = "2A63"
	CharRSCMeasurement         = "2A53"
	CharFTMSFeature            = "2ACC"
	CharFTMSSupportedPowerRange = "2AD8"
	CharFTMSControlPoint       = "2AD9"
	CharFitnessMachineStatus   = "2ADA"
)

const (
	ibdFlagAverageSpeed byte = 1 << 1
	ibdFlagCadence      byte = 1 << 2
	ibdFlagPower        byte = 1 << 6

	cpsFlagWheelRev byte = 1 << 4
	cpsFlagCrankRev byte = 1 << 5
)

// IndoorBikeData is the decoded form of an FTMS Indoor Bike Data
// notification. SpeedMps is always present; the others are valid only
// when their Has* flag is set.
type IndoorBikeData struct {
	SpeedMps        float64
	HasAvgSpeed     bool
	AvgSpeedMps     float64
	HasCadence      bool
	CadenceRPM      float64
	HasPower        bool
	PowerW          int16
}

// EncodeIndoorBikeData builds a 0x2AD2 payload. Instantaneous speed is
// always encoded as 0 per this implementation's open-question decision;
// cadence and power are included whenever requested.
func EncodeIndoorBikeData(cadenceRPM float64, powerW int16, includeCadence, includePower bool) []byte {
	var flags uint16
	if includeCadence {
		flags |= uint16(ibdFlagCadence)
	}
	if includePower {
		flags |= uint16(ibdFlagPower)
	}

	buf := make([]byte, 4, 8)
	binary.LittleEndian.PutUint16(buf[0:2], flags)
	binary.LittleEndian.PutUint16(buf[2:4], 0) // instantaneous speed, pinned to 0

	if includeCadence {
		raw := uint16(cadenceRPM * 2)
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, raw)
		buf = append(buf, b...)
	}
	if includePower {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(powerW))
		buf = append(buf, b...)
	}
	return buf
}

// DecodeIndoorBikeData parses a 0x2AD2 payload emitted by any FTMS
// peripheral (used by integration tests and the loopback central role).
func DecodeIndoorBikeData(payload []byte) (IndoorBikeData, bool) {
	if len(payload) < 4 {
		return IndoorBikeData{}, false
	}
	flags := binary.LittleEndian.Uint16(payload[0:2])
	speedRaw := binary.LittleEndian.Uint16(payload[2:4])
	out := IndoorBikeData{SpeedMps: float64(speedRaw) / 100.0}

	off := 4
	if flags&uint16(ibdFlagAverageSpeed) != 0 {
		if len(payload) < off+2 {
			return IndoorBikeData{}, false
		}
		out.HasAvgSpeed = true
		out.AvgSpeedMps = float64(binary.LittleEndian.Uint16(payload[off:off+2])) / 100.0
		off += 2
	}
	if flags&uint16(ibdFlagCadence) != 0 {
		if len(payload) < off+2 {
			return IndoorBikeData{}, false
		}
		out.HasCadence = true
		out.CadenceRPM = float64(binary.LittleEndian.Uint16(payload[off:off+2])) / 2.0
		off += 2
	}
	if flags&uint16(ibdFlagPower) != 0 {
		if len(payload) < off+2 {
			return IndoorBikeData{}, false
		}
		out.HasPower = true
		out.PowerW = int16(binary.LittleEndian.Uint16(payload[off : off+2]))
		off += 2
	}
	return out, true
}

// EncodeCPSMeasurement builds a 0x2A63 payload with both wheel- and
// crank-revolution data present.
func EncodeCPSMeasurement(powerW int16, wheelRevs uint32, wheelEventTime1_2048 uint16, crankRevs uint16, crankEventTime1_1024 uint16) []byte {
	flags := uint16(cpsFlagWheelRev) | uint16(cpsFlagCrankRev)

	buf := make([]byte, 4, 14)
	binary.LittleEndian.PutUint16(buf[0:2], flags)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(powerW))

	wheel := make([]byte, 6)
	binary.LittleEndian.PutUint32(wheel[0:4], wheelRevs)
	binary.LittleEndian.PutUint16(wheel[4:6], wheelEventTime1_2048)
	buf = append(buf, wheel...)

	crank := make([]byte, 4)
	binary.LittleEndian.PutUint16(crank[0:2], crankRevs)
	binary.LittleEndian.PutUint16(crank[2:4], crankEventTime1_1024)
	buf = append(buf, crank...)

	return buf
}

// CPSMeasurement is the decoded form of a 0x2A63 payload.
type CPSMeasurement struct {
	PowerW                int16
	HasWheelData          bool
	WheelRevs             uint32
	WheelEventTime1_2048  uint16
	HasCrankData          bool
	CrankRevs             uint16
	CrankEventTime1_1024  uint16
}

// DecodeCPSMeasurement parses a 0x2A63 payload.
func DecodeCPSMeasurement(payload []byte) (CPSMeasurement, bool) {
	if len(payload) < 4 {
		return CPSMeasurement{}, false
	}
	flags := binary.LittleEndian.Uint16(payload[0:2])
	out := CPSMeasurement{PowerW: int16(binary.LittleEndian.Uint16(payload[2:4]))}
	off := 4

	if flags&uint16(cpsFlagWheelRev) != 0 {
		if len(payload) < off+6 {
			return CPSMeasurement{}, false
		}
		out.HasWheelData = true
		out.WheelRevs = binary.LittleEndian.Uint32(payload[off : off+4])
		out.WheelEventTime1_2048 = binary.LittleEndian.Uint16(payload[off+4 : off+6])
		off += 6
	}
	if flags&uint16(cpsFlagCrankRev) != 0 {
		if len(payload) < off+4 {
			return CPSMeasurement{}, false
		}
		out.HasCrankData = true
		out.CrankRevs = binary.LittleEndian.Uint16(payload[off : off+2])
		out.CrankEventTime1_1024 = binary.LittleEndian.Uint16(payload[off+2 : off+4])
		off += 4
	}
	return out, true
}

// CPSParserState tracks the previous crank-revolution event so successive
// CPS frames can be turned into an instantaneous cadence.
type CPSParserState struct {
	lastCrankRevs      uint16
	lastCrankEventTime uint16
	initialized        bool
}

// CadenceFromCrankEvent derives rpm from the delta between this frame's
// crank-revolution event and the previous one, handling u16 wraparound on
// both counters. Returns false on the first call (no prior event) or when
// the event time did not advance.
func (s *CPSParserState) CadenceFromCrankEvent(crankRevs, crankEventTime1_1024 uint16) (float64, bool) {
	if !s.initialized {
		s.lastCrankRevs = crankRevs
		s.lastCrankEventTime = crankEventTime1_1024
		s.initialized = true
		return 0, false
	}

	deltaRevs := crankRevs - s.lastCrankRevs   // wraps naturally on uint16
	deltaTicks := crankEventTime1_1024 - s.lastCrankEventTime

	s.lastCrankRevs = crankRevs
	s.lastCrankEventTime = crankEventTime1_1024

	if deltaTicks == 0 {
		return 0, false
	}
	cadence := float64(deltaRevs) * 1024.0 * 60.0 / float64(deltaTicks)
	return cadence, true
}

// EncodeRSCMeasurement builds a 0x2A53 payload.
func EncodeRSCMeasurement(speedMps float64, cadenceRPM float64) []byte {
	buf := make([]byte, 4)
	buf[0] = 0 // flags: no extensions
	binary.LittleEndian.PutUint16(buf[1:3], uint16(speedMps*256))
	buf[3] = byte(cadenceRPM)
	return buf
}

// RSCMeasurement is the decoded form of a 0x2A53 payload.
type RSCMeasurement struct {
	SpeedMps   float64
	CadenceRPM int
}

// DecodeRSCMeasurement parses a 0x2A53 payload.
func DecodeRSCMeasurement(payload []byte) (RSCMeasurement, bool) {
	if len(payload) < 4 {
		return RSCMeasurement{}, false
	}
	speedRaw := binary.LittleEndian.Uint16(payload[1:3])
	return RSCMeasurement{
		SpeedMps:   float64(speedRaw) / 256.0,
		CadenceRPM: int(payload[3]),
	}, true
}

const (
	ftmsFeatureCadenceBit uint32 = 1 << 1
	ftmsFeaturePowerBit   uint32 = 1 << 14

	ftmsTargetPowerBit       uint32 = 1 << 3
	ftmsIndoorSimulationBit uint32 = 1 << 13
)

// EncodeFTMSFeature builds the static 8-byte 0x2ACC payload advertising
// cadence and power measurement plus power-target and indoor-bike
// simulation control support.
func EncodeFTMSFeature() []byte {
	lower := ftmsFeatureCadenceBit | ftmsFeaturePowerBit
	upper := ftmsTargetPowerBit | ftmsIndoorSimulationBit

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], lower)
	binary.LittleEndian.PutUint32(buf[4:8], upper)
	return buf
}

// EncodeFTMSSupportedPowerRange builds the 0x2AD8 payload: 0-1000W in
// 1W steps.
func EncodeFTMSSupportedPowerRange() []byte {
	buf := make([]byte, 6)
	binary.LittleEndian.PutUint16(buf[0:2], 0)
	binary.LittleEndian.PutUint16(buf[2:4], 1000)
	binary.LittleEndian.PutUint16(buf[4:6], 1)
	return buf
}
