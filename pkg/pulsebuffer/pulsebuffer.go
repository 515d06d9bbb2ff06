// Package pulsebuffer decouples the edge detection from the pulse decoding.
//
// HandleEdge is called from the edge event handler and only stores the edge. The
// stored edges are passed to the connected processor by ProcessData, which needs
// to be called periodically from the receive loop.
//
// Every edge is stored in 16 bit slots:
//   - bit 15 is the direction of the edge (set for rising edges)
//   - bits 0..14 are the delay since the previously stored edge in microseconds.
//     The value 0x7fff is reserved and means that the next two slots hold the
//     absolute time of the edge (low half first, high half second).
package pulsebuffer

import (
	"errors"
	"sync"

	"github.com/womat/debug"

	"rc433/pkg/port"
)

const (
	// directionMask marks a rising edge.
	directionMask = 0x8000
	// absoluteTime is the delay value announcing two slots of absolute time.
	absoluteTime = 0x7fff
	// MinCapacity is the smallest usable buffer, an absolute time needs three slots.
	MinCapacity = 3
)

var ErrCapacity = errors.New("pulse buffer capacity must be at least 3 slots")

// Stats is a snapshot of the buffer counters.
type Stats struct {
	Capacity int    `json:"capacity"`
	Used     int    `json:"used"`
	Stored   uint64 `json:"stored"`
	Missed   uint64 `json:"missed"`
}

// Buffer implements port.Processor.
type Buffer struct {
	// mu guards every field below, it is held only for the index bookkeeping
	// and never while the connected processor runs.
	mu sync.Mutex

	next  port.Processor
	slots []uint16

	// lastStored is the time of the newest edge in the buffer, valid if used > 0.
	lastStored port.Microseconds
	// lastSent is the time of the last edge passed to next.
	lastSent port.Microseconds

	dataIndex int
	freeIndex int
	// used is the count of slots (not edges) in the buffer.
	used int
	// missed is the count of edges dropped since the last notification.
	missed int
	// gapPending is set while a drop hasn't been reported yet and gapAhead
	// is the count of slots that have to be drained before it is reached.
	gapPending bool
	gapAhead   int

	stored      uint64
	missedTotal uint64
}

// New creates a buffer of capacity slots passing the edges to next.
func New(next port.Processor, capacity int) (*Buffer, error) {
	if capacity < MinCapacity {
		return nil, ErrCapacity
	}

	return &Buffer{
		next:  next,
		slots: make([]uint16, capacity),
	}, nil
}

// critical runs fn with the producer locked out.
func (b *Buffer) critical(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn()
}

// HandleEdge stores the edge. It never blocks on the consumer, if the buffer
// is full the edge is dropped and counted.
func (b *Buffer) HandleEdge(time port.Microseconds, rising bool) {
	var dir uint16
	if rising {
		dir = directionMask
	}

	b.critical(func() {
		free := len(b.slots) - b.used
		delay := time.Sub(b.lastStored)

		switch {
		case b.used > 0 && delay < absoluteTime:
			if free < 1 {
				b.drop()
				return
			}
			b.put(dir | uint16(delay))
		default:
			if free < 3 {
				b.drop()
				return
			}
			b.put(dir | absoluteTime)
			b.put(uint16(time))
			b.put(uint16(time >> 16))
		}

		b.lastStored = time
		b.stored++
	})
}

// HandleMissedEdges marks a gap behind the edges already stored. The connected
// processor is notified by ProcessData when the gap is reached.
func (b *Buffer) HandleMissedEdges() {
	b.critical(b.markGap)
}

// put appends one slot, the caller checked for free space.
func (b *Buffer) put(v uint16) {
	b.slots[b.freeIndex] = v
	b.freeIndex = b.advance(b.freeIndex)
	b.used++
}

// take removes the oldest slot, the caller checked that one exists.
func (b *Buffer) take() uint16 {
	v := b.slots[b.dataIndex]
	b.dataIndex = b.advance(b.dataIndex)
	b.used--
	return v
}

func (b *Buffer) advance(i int) int {
	if i++; i == len(b.slots) {
		return 0
	}
	return i
}

// drop counts a lost edge and moves the gap marker behind the slots still in the buffer.
// Further drops before the marker is reached are coalesced into one notification
// at the position of the latest drop, so every edge passed on after the
// notification is contiguous.
func (b *Buffer) drop() {
	b.missed++
	b.missedTotal++
	b.markGap()
}

func (b *Buffer) markGap() {
	b.gapPending = true
	b.gapAhead = b.used
}

// ProcessData passes the buffered edges to the connected processor in FIFO order.
// It reports the count of slots consumed, edges passed on and edges missed.
func (b *Buffer) ProcessData() (slots, edges, missed int) {
	for {
		var (
			edge      port.Edge
			haveEdge  bool
			gap       bool
			gapMissed int
		)

		b.critical(func() {
			if b.gapPending && b.gapAhead == 0 {
				gap = true
				gapMissed = b.missed
				b.missed = 0
				b.gapPending = false
				return
			}

			if b.used == 0 {
				return
			}

			n := b.used
			edge, haveEdge = b.pop()
			n -= b.used
			slots += n

			if b.gapPending {
				b.gapAhead -= n
			}
		})

		switch {
		case gap:
			if gapMissed > 0 {
				debug.DebugLog.Printf("%d edges missed, buffer was full", gapMissed)
			}
			missed += gapMissed
			b.next.HandleMissedEdges()
		case haveEdge:
			edges++
			b.next.HandleEdge(edge.Time, edge.Rising)
		default:
			return slots, edges, missed
		}
	}
}

// pop decodes the oldest edge, must be called inside the critical section.
func (b *Buffer) pop() (port.Edge, bool) {
	v := b.take()
	e := port.Edge{Rising: v&directionMask != 0}

	if delay := v &^ directionMask; delay != absoluteTime {
		e.Time = b.lastSent + port.Microseconds(delay)
	} else {
		if b.used < 2 {
			// can't happen, the producer stores absolute times as a whole
			b.used = 0
			b.dataIndex = b.freeIndex
			return e, false
		}
		lo := port.Microseconds(b.take())
		hi := port.Microseconds(b.take())
		e.Time = hi<<16 | lo
	}

	b.lastSent = e.Time
	return e, true
}

// Stats returns a snapshot of the buffer counters.
func (b *Buffer) Stats() (s Stats) {
	b.critical(func() {
		s = Stats{
			Capacity: len(b.slots),
			Used:     b.used,
			Stored:   b.stored,
			Missed:   b.missedTotal,
		}
	})
	return s
}
