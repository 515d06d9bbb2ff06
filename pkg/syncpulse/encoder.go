package syncpulse

import (
	"rc433/pkg/port"
)

// Encoder converts data bits into the pulses of a protocol.
type Encoder struct {
	protocol Protocol
}

// NewEncoder initials an encoder for protocol p.
func NewEncoder(p Protocol) (*Encoder, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Encoder{protocol: p}, nil
}

// EncodeData passes repetitions times the sync pulse followed by bits data bits to tx.
//  The bits are sent most significant bit first, a partial last byte is left aligned.
func (e *Encoder) EncodeData(tx port.DataTransmitter, data []byte, bits, repetitions int) {
	if bits > len(data)*8 {
		bits = len(data) * 8
	}

	for r := 0; r < repetitions; r++ {
		e.pulse(tx, e.protocol.Sync)

		for i := 0; i < bits; i++ {
			if data[i/8]&(0x80>>(i%8)) != 0 {
				e.pulse(tx, e.protocol.One)
			} else {
				e.pulse(tx, e.protocol.Zero)
			}
		}
	}
}

func (e *Encoder) pulse(tx port.DataTransmitter, p Pair) {
	if e.protocol.HighFirst {
		port.TransmitPulse(tx, p.First, p.Second)
		return
	}

	tx.TransmitEdge(false, p.First)
	tx.TransmitEdge(true, p.Second)
}
