// Package syncpulse is the line code of the common 433MHz remote controls and sensors.
//
// A packet starts with a distinguished sync pulse followed by one pulse per data bit.
// Zero and one bits differ in the durations of the high and the low level.
// There is no end marker, a packet ends when the maximum length is reached or
// when a pulse doesn't match any bit.
package syncpulse

import (
	"math"

	"github.com/womat/debug"

	"rc433/pkg/port"
)

// class is the classification of one received pulse.
type class int

const (
	classNone class = iota
	classZero
	classOne
	classSync
)

// Decoder implements port.Processor and passes the decoded packets to a port.DataReceiver.
type Decoder struct {
	receiver port.DataReceiver
	protocol Protocol

	// leading is the edge starting a pulse, rising if the protocol is HighFirst.
	leading      bool
	prevLeading  port.Edge
	hasLeading   bool
	prevTrailing port.Edge
	hasTrailing  bool

	synced   bool
	syncTime port.Microseconds

	data [MaxBits / 8]byte
	bits int
	// deltaPowerSum is the sum of the squared deviations of all durations of the packet.
	deltaPowerSum float64
}

// NewDecoder initials a decoder for protocol p reporting to receiver.
func NewDecoder(receiver port.DataReceiver, p Protocol) (*Decoder, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &Decoder{
		receiver: receiver,
		protocol: p,
		leading:  p.HighFirst,
	}, nil
}

// Protocol returns the protocol decoded by d.
func (d *Decoder) Protocol() Protocol {
	return d.protocol
}

// HandleEdge implements port.Processor.
//  The trailing edge of a pulse is only remembered. On the leading edge the
//  durations of the previous pulse are known and the pulse is classified.
func (d *Decoder) HandleEdge(time port.Microseconds, rising bool) {
	if rising != d.leading {
		d.prevTrailing = port.Edge{Time: time, Rising: rising}
		d.hasTrailing = true
		return
	}

	if d.hasLeading && d.hasTrailing {
		first := d.prevTrailing.Time.Sub(d.prevLeading.Time)
		second := time.Sub(d.prevTrailing.Time)
		d.handlePulse(time, first, second)
	}

	d.prevLeading = port.Edge{Time: time, Rising: rising}
	d.hasLeading = true
	d.hasTrailing = false
}

// HandleMissedEdges implements port.Processor.
//  The decoder continues as if the sync pulse was just received instead of waiting
//  for the next one. This recovers data faster after a short gap, a wrong packet is
//  still caught by the bit count and the quality.
func (d *Decoder) HandleMissedEdges() {
	debug.DebugLog.Printf("%s: edges missed, restart packet", d.protocol.Name)

	d.clear()
	d.synced = true
	d.hasLeading = false
	d.hasTrailing = false
}

// classify returns the meaning of a pulse. A data bit wins against the sync pulse.
func (d *Decoder) classify(first, second port.Microseconds) class {
	p := &d.protocol

	switch {
	case d.synced && p.One.matches(first, second, p.Tolerance):
		return classOne
	case d.synced && p.Zero.matches(first, second, p.Tolerance):
		return classZero
	case p.Sync.matches(first, second, p.Tolerance):
		return classSync
	default:
		return classNone
	}
}

// handlePulse runs the state machine for one complete pulse ending at time.
func (d *Decoder) handlePulse(time, first, second port.Microseconds) {
	p := &d.protocol

	switch c := d.classify(first, second); c {
	case classOne, classZero:
		expected := p.Zero
		if c == classOne {
			expected = p.One
		}
		d.storeBit(c == classOne)
		d.addDelta(expected, first, second)

		if d.bits >= p.MaxBits {
			d.send()
		}

	default:
		if d.synced && d.bits >= p.MinBits {
			d.send()
		}
		d.synced = false

		if c == classSync {
			d.clear()
			d.addDelta(p.Sync, first, second)
			d.syncTime = time
			d.synced = true
			debug.TraceLog.Printf("%s: sync at %d", p.Name, time)
		}
	}
}

// storeBit appends one bit, bits beyond MaxBits are discarded.
func (d *Decoder) storeBit(one bool) {
	if d.bits >= MaxBits {
		return
	}
	if one {
		d.data[d.bits/8] |= 0x80 >> (d.bits % 8)
	}
	d.bits++
}

func (d *Decoder) addDelta(expected Pair, first, second port.Microseconds) {
	f := float64(port.Deviation(first, expected.First))
	s := float64(port.Deviation(second, expected.Second))
	d.deltaPowerSum += f*f + s*s
}

// clear drops the received bits and the quality sum.
func (d *Decoder) clear() {
	d.data = [MaxBits / 8]byte{}
	d.bits = 0
	d.deltaPowerSum = 0
}

// quality is the root mean square deviation of the packet durations relative to
// the tolerance: 100 for exact timing, 0 if every duration is off by the tolerance.
// It isn't clamped, a negative value means a deviation beyond the tolerance.
func (d *Decoder) quality() float64 {
	if d.protocol.Tolerance == 0 {
		return 100
	}

	rms := math.Sqrt(d.deltaPowerSum / float64(2*(d.bits+1)))
	return 100 * (1 - rms/float64(d.protocol.Tolerance))
}

// send passes the packet to the receiver and starts a new one.
func (d *Decoder) send() {
	q := d.quality()
	debug.DebugLog.Printf("%s: packet %d bits, quality %.1f%%", d.protocol.Name, d.bits, q)

	d.receiver.HandleData(d.syncTime, d.data[:(d.bits+7)/8], d.bits, q)
	d.clear()
}
