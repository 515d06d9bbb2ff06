//go:build linux
// +build linux

package raspberry

import (
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/gpio"
	"github.com/warthog618/gpiod"
	"golang.org/x/sys/unix"

	"rc433/pkg/port"
)

// chipName is the gpio character device of the raspberry pi header.
const chipName = "gpiochip0"

// spinThreshold is the remaining time the clock waits busy instead of sleeping.
const spinThreshold = 200 * time.Microsecond

// NewReceiver watches both edges of gpio and passes them to processor.
//  terminator defines the line bias: pullup, pulldown, disable or none.
func NewReceiver(processor port.Processor, gpioNum int, terminator string) (*Receiver, error) {
	bias, err := lineBias(terminator)
	if err != nil {
		return nil, err
	}

	r := &Receiver{gpio: gpioNum, processor: processor}
	if err := claim(r); err != nil {
		return nil, err
	}

	chip, err := gpiod.NewChip(chipName)
	if err != nil {
		unclaim(r)
		return nil, errors.Wrapf(err, "open %s", chipName)
	}

	line, err := chip.RequestLine(gpioNum, gpiod.WithEventHandler(handleEvent),
		gpiod.WithBothEdges, gpiod.AsInput, bias)
	if err != nil {
		unclaim(r)
		_ = chip.Close()
		return nil, errors.Wrapf(err, "request line %d", gpioNum)
	}

	r.release = func() error {
		if err := line.Close(); err != nil {
			_ = chip.Close()
			return err
		}
		return chip.Close()
	}

	return r, nil
}

// lineBias returns the bias option of the terminator.
//  none leaves the bias of the line as it is, disable switches the internal bias off.
func lineBias(terminator string) (gpiod.LineReqOption, error) {
	switch terminator {
	case "pullup":
		return gpiod.WithPullUp, nil
	case "pulldown":
		return gpiod.WithPullDown, nil
	case "disable":
		return gpiod.WithBiasDisabled, nil
	case "none", "":
		return gpiod.WithBiasAsIs, nil
	default:
		return nil, errors.Wrapf(ErrInvalidParam, "terminator %q", terminator)
	}
}

// handleEvent is the event handler of the receiver line, it passes the edge to the active receiver.
func handleEvent(evt gpiod.LineEvent) {
	dispatch(toMicroseconds(evt.Timestamp), evt.Type == gpiod.LineEventRisingEdge)
}

// OutputPin is the line driving the transmitter.
type OutputPin struct {
	pin *gpio.Pin
}

// OpenOutput maps the gpio memory and sets gpioNum as low output.
func OpenOutput(gpioNum int) (*OutputPin, error) {
	if err := gpio.Open(); err != nil {
		return nil, errors.Wrap(err, "open gpio memory")
	}

	p := gpio.NewPin(gpioNum)
	p.Low()
	p.Output()
	return &OutputPin{pin: p}, nil
}

// Set implements transmitter.Pin.
func (p *OutputPin) Set(level bool) {
	p.pin.Write(gpio.Level(level))
}

// Close sets the pin low, back to input and unmaps the gpio memory.
func (p *OutputPin) Close() error {
	p.pin.Low()
	p.pin.Input()
	return gpio.Close()
}

// Clock reads the monotonic clock, the same time base as the line event timestamps.
type Clock struct{}

// Now implements transmitter.Clock.
func (Clock) Now() port.Microseconds {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return toMicroseconds(time.Duration(time.Now().UnixNano()))
	}
	return toMicroseconds(time.Duration(ts.Nano()))
}

// Sleep implements transmitter.Clock.
//  The scheduler wakes up too late for pulses of a few hundred microseconds,
//  so the last part of the wait is spent busy.
func (c Clock) Sleep(d port.Microseconds) {
	deadline := c.Now() + d
	if wait := time.Duration(d) * time.Microsecond; wait > spinThreshold {
		time.Sleep(wait - spinThreshold)
	}

	for {
		if left := deadline.Sub(c.Now()); left == 0 || left > d {
			return
		}
	}
}

func toMicroseconds(d time.Duration) port.Microseconds {
	return port.Microseconds(d / time.Microsecond)
}
