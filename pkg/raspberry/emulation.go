//go:build !linux
// +build !linux

package raspberry

import (
	"time"

	"github.com/pkg/errors"

	"rc433/pkg/port"
)

// start is the time base of the emulated clock.
var start = time.Now()

// NewReceiver emulates a receiver on hosts without gpio character devices.
//  Edges are injected by EmuEdge.
func NewReceiver(processor port.Processor, gpioNum int, terminator string) (*Receiver, error) {
	switch terminator {
	case "pullup", "pulldown", "disable", "none", "":
	default:
		return nil, errors.Wrapf(ErrInvalidParam, "terminator %q", terminator)
	}

	r := &Receiver{gpio: gpioNum, processor: processor}
	if err := claim(r); err != nil {
		return nil, err
	}
	return r, nil
}

// EmuEdge emulates an edge on the line of the active receiver.
func EmuEdge(rising bool) {
	dispatch(Clock{}.Now(), rising)
}

// OutputPin emulates the transmitter line, it only remembers the level.
type OutputPin struct {
	Level bool
}

// OpenOutput returns an emulated output pin.
func OpenOutput(gpioNum int) (*OutputPin, error) {
	return &OutputPin{}, nil
}

// Set implements transmitter.Pin.
func (p *OutputPin) Set(level bool) {
	p.Level = level
}

// Close implements io.Closer.
func (p *OutputPin) Close() error {
	return nil
}

// Clock is the emulated monotonic microsecond clock.
type Clock struct{}

// Now implements transmitter.Clock.
func (Clock) Now() port.Microseconds {
	return port.Microseconds(time.Since(start) / time.Microsecond)
}

// Sleep implements transmitter.Clock.
func (Clock) Sleep(d port.Microseconds) {
	time.Sleep(time.Duration(d) * time.Microsecond)
}
