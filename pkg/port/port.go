// Package port holds the definitions shared by all stages of the pulse processing chain.
package port

// Microseconds is a point in time or a duration in microseconds.
// The counter is 32 bit wide and wraps, so differences must always be computed
// by subtraction (b - a) and never by comparing instants.
type Microseconds uint32

// Edge is a rising or falling transition detected at Time.
type Edge struct {
	Time   Microseconds
	Rising bool
}

// Processor is implemented by every stage of the receive chain.
type Processor interface {
	// HandleEdge handles one rising or falling edge detected at time.
	HandleEdge(time Microseconds, rising bool)
	// HandleMissedEdges notifies the processor that edges were lost in an earlier stage.
	HandleMissedEdges()
}

// DataReceiver consumes the packets assembled by a decoder.
// data is only valid during the call, copy it to keep it.
type DataReceiver interface {
	HandleData(syncTime Microseconds, data []byte, bits int, quality float64)
}

// DataTransmitter accepts the encoded edges to be sent via the hardware layer.
type DataTransmitter interface {
	// TransmitEdge sets the line level and plans to hold it for duration.
	TransmitEdge(rising bool, duration Microseconds)
}

// Sub returns the duration from u to t, correct across wraparound.
func (t Microseconds) Sub(u Microseconds) Microseconds {
	return t - u
}

// Deviation returns the absolute difference between actual and expected.
func Deviation(actual, expected Microseconds) Microseconds {
	if actual > expected {
		return actual - expected
	}
	return expected - actual
}

// Within reports whether actual is at most tolerance away from expected.
func Within(actual, expected, tolerance Microseconds) bool {
	return Deviation(actual, expected) <= tolerance
}

// TransmitPulse transmits one pulse starting with the rising edge.
func TransmitPulse(tx DataTransmitter, high, low Microseconds) {
	tx.TransmitEdge(true, high)
	tx.TransmitEdge(false, low)
}

// TransmitPulses transmits count identical pulses.
func TransmitPulses(tx DataTransmitter, high, low Microseconds, count int) {
	for i := 0; i < count; i++ {
		TransmitPulse(tx, high, low)
	}
}
