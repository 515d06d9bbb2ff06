package pulsebuffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rc433/pkg/port"
)

const missedMarker = port.Microseconds(0xdeadbeef)

// recorder stores the edges and marks missed edge notifications in the stream.
type recorder struct {
	edges  []port.Edge
	missed int
}

func (r *recorder) HandleEdge(time port.Microseconds, rising bool) {
	r.edges = append(r.edges, port.Edge{Time: time, Rising: rising})
}

func (r *recorder) HandleMissedEdges() {
	r.missed++
	r.edges = append(r.edges, port.Edge{Time: missedMarker})
}

func TestNewRejectsSmallCapacity(t *testing.T) {
	_, err := New(&recorder{}, 2)
	assert.ErrorIs(t, err, ErrCapacity)
}

func TestRoundTrip(t *testing.T) {
	r := &recorder{}
	b, err := New(r, 64)
	require.NoError(t, err)

	in := []port.Edge{
		{Time: 1000, Rising: true},
		{Time: 1300},
		{Time: 1300 + 0x7ffe, Rising: true}, // largest relative delay
		{Time: 1300 + 0x7ffe + 0x7fff},      // needs the absolute time
		{Time: 0xfffffff0, Rising: true},    // far jump
		{Time: 0x00000010},                  // across wraparound, relative
	}
	for _, e := range in {
		b.HandleEdge(e.Time, e.Rising)
	}

	slots, edges, missed := b.ProcessData()
	assert.Equal(t, 3+1+1+3+3+1, slots)
	assert.Equal(t, len(in), edges)
	assert.Zero(t, missed)
	assert.Equal(t, in, r.edges)

	slots, edges, missed = b.ProcessData()
	assert.Zero(t, slots+edges+missed)
}

func TestRoundTripInterleaved(t *testing.T) {
	r := &recorder{}
	b, err := New(r, 16)
	require.NoError(t, err)

	var in []port.Edge
	var now port.Microseconds = 0xffff0000
	for i := 0; i < 200; i++ {
		now += port.Microseconds(100 + i*397)
		e := port.Edge{Time: now, Rising: i%2 == 0}
		in = append(in, e)
		b.HandleEdge(e.Time, e.Rising)
		if i%3 == 0 {
			b.ProcessData()
		}
	}
	b.ProcessData()

	assert.Zero(t, r.missed)
	assert.Equal(t, in, r.edges)
}

func TestOverflow(t *testing.T) {
	const capacity = 10
	r := &recorder{}
	b, err := New(r, capacity)
	require.NoError(t, err)

	// the first edge takes three slots, every following one a single slot
	fit := capacity - 2
	var in []port.Edge
	for i := 0; i < fit+5; i++ {
		e := port.Edge{Time: port.Microseconds(1000 + i*500), Rising: i%2 == 0}
		in = append(in, e)
		b.HandleEdge(e.Time, e.Rising)
	}
	assert.Equal(t, Stats{Capacity: capacity, Used: capacity, Stored: uint64(fit), Missed: 5}, b.Stats())

	slots, edges, missed := b.ProcessData()
	assert.Equal(t, capacity, slots)
	assert.Equal(t, fit, edges)
	assert.Equal(t, 5, missed)
	assert.Equal(t, 1, r.missed)

	// edges before the drop first, then one notification
	want := append(append([]port.Edge{}, in[:fit]...), port.Edge{Time: missedMarker})
	assert.Equal(t, want, r.edges)
}

func TestMissedReportedAtDropPosition(t *testing.T) {
	r := &recorder{}
	b, err := New(r, 6)
	require.NoError(t, err)

	// 3 + 1 + 1 + 1 slots, the fifth edge is dropped
	for i := 0; i < 5; i++ {
		b.HandleEdge(port.Microseconds(100*(i+1)), i%2 == 0)
	}

	// edges arriving after the drain follow the notification
	b.ProcessData()
	b.HandleEdge(900, false)
	b.HandleEdge(1000, true)
	b.ProcessData()

	assert.Equal(t, 1, r.missed)
	assert.Equal(t, []port.Edge{
		{Time: 100, Rising: true},
		{Time: 200},
		{Time: 300, Rising: true},
		{Time: 400},
		{Time: missedMarker},
		{Time: 900},
		{Time: 1000, Rising: true},
	}, r.edges)
}

func TestMissedCoalesced(t *testing.T) {
	r := &recorder{}
	b, err := New(r, 4)
	require.NoError(t, err)

	b.HandleEdge(100, true)  // 3 slots
	b.HandleEdge(200, false) // 1 slot, full
	_, _, _ = b.ProcessData()

	// only one slot is left after 300, both absolute times are dropped
	b.HandleEdge(300, true)
	b.HandleEdge(0x90000, false) // absolute, 3 slots don't fit
	b.HandleEdge(0x90100, true)  // relative to 300 is too far, still absolute

	_, edges, missed := b.ProcessData()
	assert.Equal(t, 1, edges)
	assert.Equal(t, 2, missed)
	assert.Equal(t, []port.Edge{
		{Time: 100, Rising: true},
		{Time: 200},
		{Time: 300, Rising: true},
		{Time: missedMarker},
	}, r.edges)
}

// producer stores edges from inside the consumer, like an event handler
// running while ProcessData drains the buffer.
type producer struct {
	recorder
	at map[port.Microseconds]func()
}

func (p *producer) HandleEdge(time port.Microseconds, rising bool) {
	p.recorder.HandleEdge(time, rising)
	if fn := p.at[time]; fn != nil {
		fn()
	}
}

func TestMissedBurstsWithEdgesBetween(t *testing.T) {
	p := &producer{}
	b, err := New(p, 8)
	require.NoError(t, err)

	b.HandleEdge(100, true) // 3 slots
	b.HandleEdge(200, false)
	b.HandleEdge(300, true)
	b.HandleEdge(400, false)
	b.HandleEdge(500, true)
	b.HandleEdge(600, false) // full
	b.HandleEdge(650, true)  // first burst

	p.at = map[port.Microseconds]func(){
		200: func() {
			// 4 slots are free again
			b.HandleEdge(700, false)
			b.HandleEdge(800, true)
			b.HandleEdge(900, false)
			b.HandleEdge(1000, true)
			b.HandleEdge(1100, false) // second burst
		},
	}

	_, edges, missed := b.ProcessData()
	assert.Equal(t, 10, edges)
	assert.Equal(t, 2, missed)

	b.HandleEdge(1200, true)
	b.ProcessData()

	// one notification at the latest drop, the edges stored between the bursts come first
	assert.Equal(t, 1, p.missed)
	assert.Equal(t, []port.Edge{
		{Time: 100, Rising: true},
		{Time: 200},
		{Time: 300, Rising: true},
		{Time: 400},
		{Time: 500, Rising: true},
		{Time: 600},
		{Time: 700},
		{Time: 800, Rising: true},
		{Time: 900},
		{Time: 1000, Rising: true},
		{Time: missedMarker},
		{Time: 1200, Rising: true},
	}, p.edges)
	assert.Equal(t, uint64(2), b.Stats().Missed)
}

func TestMissedEdgesUpstream(t *testing.T) {
	r := &recorder{}
	b, err := New(r, 8)
	require.NoError(t, err)

	b.HandleEdge(100, true)
	b.HandleMissedEdges()
	assert.Zero(t, r.missed, "notification must wait for the drain")

	b.HandleEdge(5000, false)
	_, edges, missed := b.ProcessData()

	assert.Equal(t, 2, edges)
	assert.Zero(t, missed)
	assert.Equal(t, []port.Edge{
		{Time: 100, Rising: true},
		{Time: missedMarker},
		{Time: 5000},
	}, r.edges)
}

func TestConcurrentProducer(t *testing.T) {
	r := &recorder{}
	b, err := New(r, 32)
	require.NoError(t, err)

	const count = 20000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			b.HandleEdge(port.Microseconds(i*10), i%2 == 0)
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		b.ProcessData()
	}
	b.ProcessData()

	s := b.Stats()
	assert.Equal(t, uint64(count), s.Stored+s.Missed)
	assert.Zero(t, s.Used)

	// the delivered edges keep their order and times
	var last port.Microseconds
	delivered := 0
	for _, e := range r.edges {
		if e.Time == missedMarker {
			continue
		}
		if delivered > 0 {
			assert.Greater(t, uint32(e.Time), uint32(last))
		}
		assert.Zero(t, e.Time%10)
		assert.Equal(t, (e.Time/10)%2 == 0, e.Rising)
		last = e.Time
		delivered++
	}
	assert.Equal(t, s.Stored, uint64(delivered))
}
