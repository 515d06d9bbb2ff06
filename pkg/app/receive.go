package app

import (
	"time"

	"github.com/womat/debug"

	"rc433/pkg/app/config"
	"rc433/pkg/noise"
	"rc433/pkg/port"
	"rc433/pkg/pulsebuffer"
	"rc433/pkg/syncpulse"
)

// newChain builds the receive chain
//  line events -> pulse buffer -> noise filter (optional) -> one decoder per protocol
// and returns its head, the buffer. Every decoded packet is passed to sink.
func newChain(protocols []syncpulse.Protocol, cfg config.ReceiverConfig, sink func(Packet)) (*pulsebuffer.Buffer, error) {
	decoders := make([]port.Processor, 0, len(protocols))
	for _, p := range protocols {
		d, err := syncpulse.NewDecoder(&collector{protocol: p.Name, sink: sink}, p)
		if err != nil {
			return nil, err
		}
		decoders = append(decoders, d)
	}

	next := port.Fanout(decoders...)
	if next == nil {
		return nil, config.ErrNoProtocol
	}

	if cfg.NoiseFilter > 0 {
		next = noise.New(next, cfg.NoiseFilter)
	}

	return pulsebuffer.New(next, cfg.BufferSize)
}

// receive drains the pulse buffer periodically until shutdown.
func (app *App) receive() {
	defer close(app.done)

	ticker := time.NewTicker(app.config.Receiver.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-app.shutdown:
			return
		case <-ticker.C:
			slots, edges, missed := app.buffer.ProcessData()
			if missed > 0 {
				debug.ErrorLog.Printf("pulse buffer overflow: %d edges missed (%d slots drained)", missed, slots)
			}
			if edges > 0 {
				debug.TraceLog.Printf("processed %d edges (%d slots)", edges, slots)
			}
		}
	}
}
