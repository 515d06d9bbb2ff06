// Package raspberry binds the pulse processing chain to the gpio lines of a raspberry pi.
//
// The edge events of the receiver line are dispatched by a package level handler,
// so only one Receiver can be active at a time. NewReceiver claims the slot and
// fails with ErrReceiverActive if it is taken, Close releases it.
package raspberry

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/womat/debug"

	"rc433/pkg/port"
)

var (
	ErrInvalidParam   = errors.New("invalid parameters")
	ErrReceiverActive = errors.New("another receiver is already active")
)

// active is the receiver the edge events are passed to.
var (
	activeMu sync.RWMutex
	active   *Receiver
)

// Receiver passes the edges detected on an input line to a port.Processor.
//  The processor is called from the event handler, it must be safe to call
//  concurrently with the rest of the application (e.g. a pulsebuffer.Buffer).
type Receiver struct {
	gpio      int
	processor port.Processor
	// disabled is non zero while the reception is disabled.
	disabled int32
	// release frees the platform resources of the line.
	release func() error
}

// claim makes r the active receiver.
func claim(r *Receiver) error {
	activeMu.Lock()
	defer activeMu.Unlock()

	if active != nil {
		return ErrReceiverActive
	}
	active = r
	return nil
}

// unclaim releases the slot if r owns it.
func unclaim(r *Receiver) {
	activeMu.Lock()
	defer activeMu.Unlock()

	if active == r {
		active = nil
	}
}

// dispatch passes one edge to the active receiver.
func dispatch(time port.Microseconds, rising bool) {
	activeMu.RLock()
	r := active
	activeMu.RUnlock()

	if r == nil || atomic.LoadInt32(&r.disabled) != 0 {
		return
	}
	r.processor.HandleEdge(time, rising)
}

// Gpio returns the line number of the receiver.
func (r *Receiver) Gpio() int {
	return r.gpio
}

// Disable stops passing edges to the processor, e.g. while transmitting.
func (r *Receiver) Disable() {
	atomic.StoreInt32(&r.disabled, 1)
}

// Enable restarts passing edges to the processor. The reception is enabled by default.
//  The processor is told about the gap, edges during the disabled period are lost.
func (r *Receiver) Enable() {
	if atomic.SwapInt32(&r.disabled, 0) != 0 {
		r.processor.HandleMissedEdges()
	}
}

// Enabled reports whether edges are passed to the processor.
func (r *Receiver) Enabled() bool {
	return atomic.LoadInt32(&r.disabled) == 0
}

// Suspend disables the reception and returns the function to enable it again.
//  Use it with defer:
//   defer receiver.Suspend()()
func (r *Receiver) Suspend() func() {
	r.Disable()
	return r.Enable
}

// Close releases the line and the active receiver slot.
func (r *Receiver) Close() error {
	unclaim(r)

	if r.release == nil {
		return nil
	}
	err := r.release()
	r.release = nil
	if err != nil {
		debug.ErrorLog.Printf("can't release gpio %d: %v", r.gpio, err)
	}
	return err
}
