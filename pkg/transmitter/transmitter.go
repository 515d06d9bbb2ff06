// Package transmitter sends edges with exact timing to the transmitter line.
//
// The end of every edge is planned relative to the planned end of the previous
// edge, not relative to the time the edge was actually set. Delays caused by the
// caller or the scheduler are therefore caught up by the following edges and don't
// add up over a transmission.
package transmitter

import (
	"github.com/womat/debug"

	"rc433/pkg/port"
)

// maxWait is the longest plausible remaining time. A larger difference between the
// deadline and now is the wraparound of a deadline that already passed.
const maxWait = port.Microseconds(1 << 31)

// Pin is the output line of the transmitter.
type Pin interface {
	Set(level bool)
}

// Clock is the time source of the transmitter.
type Clock interface {
	Now() port.Microseconds
	Sleep(d port.Microseconds)
}

// Statistics describes the timing quality of a transmission.
type Statistics struct {
	// Transmitted is the total count of transmitted edges.
	Transmitted int `json:"transmitted"`
	// Delayed is the count of edges sent after their planned time.
	Delayed int `json:"delayed"`
	// DelayedOutsideTolerance is the count of edges delayed more than the tolerance.
	DelayedOutsideTolerance int `json:"delayedOutsideTolerance"`
	// TotalDelay is the sum of all delays in microseconds.
	TotalDelay uint64 `json:"totalDelay"`
	// AverageDelay is the average delay of the delayed edges in microseconds.
	AverageDelay float64 `json:"averageDelay"`
}

// Transmitter implements port.DataTransmitter.
type Transmitter struct {
	pin   Pin
	clock Clock

	inTransmission bool
	maxTolerance   port.Microseconds
	stats          Statistics

	// deadline is the planned end of the previous edge or quiet period, valid if waiting is set.
	deadline port.Microseconds
	waiting  bool
}

// New initials a transmitter driving pin.
func New(pin Pin, clock Clock) *Transmitter {
	return &Transmitter{pin: pin, clock: clock}
}

// StartTransmission starts a new transmission, edges are only sent while a transmission is started.
//  The line is held low for quietBefore first. Edges delayed more than maxDelayTolerance
//  are counted separately in the statistics.
func (t *Transmitter) StartTransmission(quietBefore, maxDelayTolerance port.Microseconds) {
	t.inTransmission = true
	t.maxTolerance = maxDelayTolerance
	t.stats = Statistics{}
	t.waiting = false

	if quietBefore > 0 {
		t.pin.Set(false)
		t.plan(quietBefore)
	}
}

// EndTransmission waits for the last edge, holds the line low for quietAfter and
// returns the statistics of the transmission.
func (t *Transmitter) EndTransmission(quietAfter port.Microseconds) Statistics {
	if !t.inTransmission {
		return Statistics{}
	}

	t.waitPrevious()
	t.pin.Set(false)

	if quietAfter > 0 {
		t.plan(quietAfter)
		t.waitPrevious()
	}

	t.waiting = false
	t.inTransmission = false

	if t.stats.Delayed > 0 {
		t.stats.AverageDelay = float64(t.stats.TotalDelay) / float64(t.stats.Delayed)
	}

	debug.DebugLog.Printf("transmission finished: %d edges, %d delayed (%d outside tolerance), average delay %.1fus",
		t.stats.Transmitted, t.stats.Delayed, t.stats.DelayedOutsideTolerance, t.stats.AverageDelay)
	return t.stats
}

// TransmitEdge implements port.DataTransmitter.
func (t *Transmitter) TransmitEdge(rising bool, duration port.Microseconds) {
	if !t.inTransmission {
		debug.ErrorLog.Print("edge transmitted outside of a transmission, ignored")
		return
	}

	t.waitPrevious()
	t.pin.Set(rising)
	t.stats.Transmitted++
	t.plan(duration)
}

// plan moves the deadline by duration.
func (t *Transmitter) plan(duration port.Microseconds) {
	if !t.waiting {
		t.deadline = t.clock.Now()
		t.waiting = true
	}
	t.deadline += duration
}

// waitPrevious sleeps until the deadline and records how late it is afterwards.
func (t *Transmitter) waitPrevious() {
	if !t.waiting {
		return
	}

	now := t.clock.Now()
	if left := t.deadline.Sub(now); left > 0 && left < maxWait {
		t.clock.Sleep(left)

		// the sleep may overshoot the deadline
		now = t.clock.Now()
		if now.Sub(t.deadline) >= maxWait {
			return
		}
	}

	t.report(now.Sub(t.deadline))
}

func (t *Transmitter) report(delay port.Microseconds) {
	if delay == 0 {
		return
	}

	t.stats.Delayed++
	t.stats.TotalDelay += uint64(delay)
	if delay > t.maxTolerance {
		t.stats.DelayedOutsideTolerance++
	}
}
