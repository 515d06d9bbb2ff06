package app

import (
	"errors"
	"fmt"

	"github.com/womat/debug"

	"rc433/pkg/app/config"
	"rc433/pkg/port"
	"rc433/pkg/raspberry"
	"rc433/pkg/syncpulse"
	"rc433/pkg/transmitter"
)

var (
	ErrNoTransmitter = errors.New("transmitter isn't initialized")
	ErrInvalidBits   = errors.New("invalid bit count")
)

// Send transmits data with the configured protocol name.
//  The reception is disabled during the transmission, we don't want to receive our own packets.
func (app *App) Send(name string, data []byte, bits, repetitions int) (transmitter.Statistics, error) {
	p, err := app.config.Protocol(name)
	if err != nil {
		return transmitter.Statistics{}, err
	}

	app.tx.Lock()
	defer app.tx.Unlock()

	if app.tx.transmitter == nil {
		return transmitter.Statistics{}, ErrNoTransmitter
	}

	if app.receiver != nil {
		defer app.receiver.Suspend()()
	}

	stats, err := transmit(app.tx.transmitter, app.config.Transmitter, p, data, bits, repetitions)
	if err == nil {
		app.tx.last = stats
	}
	return stats, err
}

// LastTransmission returns the statistics of the last transmission.
func (app *App) LastTransmission() transmitter.Statistics {
	app.tx.Lock()
	defer app.tx.Unlock()
	return app.tx.last
}

// Transmit opens the transmitter line, sends data once and releases the line.
//  It is used to send without a running application.
func Transmit(cfg *config.Config, name string, data []byte, bits, repetitions int) (transmitter.Statistics, error) {
	p, err := cfg.Protocol(name)
	if err != nil {
		return transmitter.Statistics{}, err
	}

	pin, err := raspberry.OpenOutput(cfg.Transmitter.Gpio)
	if err != nil {
		return transmitter.Statistics{}, err
	}
	defer func() { _ = pin.Close() }()

	return transmit(transmitter.New(pin, raspberry.Clock{}), cfg.Transmitter, p, data, bits, repetitions)
}

// transmit encodes one packet and sends it within quiet periods.
func transmit(tx *transmitter.Transmitter, cfg config.TransmitterConfig, p syncpulse.Protocol, data []byte, bits, repetitions int) (transmitter.Statistics, error) {
	if bits <= 0 {
		bits = len(data) * 8
	}
	if bits > len(data)*8 || bits > p.MaxBits || bits < p.MinBits {
		return transmitter.Statistics{}, fmt.Errorf("%w: %d bits, %q sends %d to %d bits of %d bits data",
			ErrInvalidBits, bits, p.Name, p.MinBits, p.MaxBits, len(data)*8)
	}
	if repetitions <= 0 {
		repetitions = cfg.Repetitions
	}

	e, err := syncpulse.NewEncoder(p)
	if err != nil {
		return transmitter.Statistics{}, err
	}

	debug.InfoLog.Printf("%s: sending %d bits %x, %d repetitions", p.Name, bits, data, repetitions)

	tx.StartTransmission(cfg.QuietBefore, cfg.MaxDelayTolerance)
	e.EncodeData(tx, data, bits, repetitions)
	// a decoder classifies a pulse on the edge starting the next one,
	// a trailing sync pulse closes the last data bit
	e.EncodeData(tx, nil, 0, 1)
	stats := tx.EndTransmission(cfg.QuietAfter)

	if stats.DelayedOutsideTolerance > 0 {
		debug.ErrorLog.Printf("%s: %d of %d edges delayed more than %dus", p.Name,
			stats.DelayedOutsideTolerance, stats.Transmitted, cfg.MaxDelayTolerance)
	}
	return stats, nil
}

var _ port.DataTransmitter = (*transmitter.Transmitter)(nil)
