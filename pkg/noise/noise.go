// Package noise eliminates fast edge changes from the pulse stream.
//
// The Filter keeps exactly one edge in memory and forwards it only after the next
// edge shows that the pulse between them was long enough. The connected processor
// therefore always receives the stream one edge late.
package noise

import (
	"rc433/pkg/port"
)

// Filter implements port.Processor and forwards filtered edges to the connected decoder.
type Filter struct {
	decoder  port.Processor
	minPulse port.Microseconds

	// last is the edge held back until the next edge arrives, valid if hasLast is set.
	last    port.Edge
	hasLast bool
}

// New initials a new noise filter dropping pulses shorter than minPulse.
func New(decoder port.Processor, minPulse port.Microseconds) *Filter {
	return &Filter{
		decoder:  decoder,
		minPulse: minPulse,
	}
}

// HandleEdge implements port.Processor.
func (f *Filter) HandleEdge(time port.Microseconds, rising bool) {
	if f.hasLast {
		if f.last.Rising == rising {
			// two edges in the same direction, the first one never formed a pulse
			f.last.Time = time
			return
		}

		if time.Sub(f.last.Time) < f.minPulse {
			// the pulse is too short: ignore it and the edge just obtained
			f.hasLast = false
			return
		}

		f.decoder.HandleEdge(f.last.Time, f.last.Rising)
	}

	f.last = port.Edge{Time: time, Rising: rising}
	f.hasLast = true
}

// HandleMissedEdges drops the held edge, it can't be paired across the gap.
func (f *Filter) HandleMissedEdges() {
	f.hasLast = false
	f.decoder.HandleMissedEdges()
}
