package syncpulse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rc433/pkg/port"
)

var testProtocol = Protocol{
	Name:      "test",
	Sync:      Pair{300, 3000},
	Zero:      Pair{300, 900},
	One:       Pair{900, 300},
	Tolerance: 100,
	HighFirst: true,
	MinBits:   4,
	MaxBits:   4,
}

type packet struct {
	syncTime port.Microseconds
	data     []byte
	bits     int
	quality  float64
}

type receiver struct {
	packets []packet
}

func (r *receiver) HandleData(syncTime port.Microseconds, data []byte, bits int, quality float64) {
	r.packets = append(r.packets, packet{
		syncTime: syncTime,
		data:     append([]byte(nil), data...),
		bits:     bits,
		quality:  quality,
	})
}

// line turns transmitted edges into received edges, stretching every duration by offset.
type line struct {
	now    port.Microseconds
	offset port.Microseconds
	edges  []port.Edge
}

func (l *line) TransmitEdge(rising bool, duration port.Microseconds) {
	l.edges = append(l.edges, port.Edge{Time: l.now, Rising: rising})
	l.now += duration + l.offset
}

// play feeds all edges and a closing leading edge into p.
func (l *line) play(p port.Processor, leading bool) {
	for _, e := range l.edges {
		p.HandleEdge(e.Time, e.Rising)
	}
	p.HandleEdge(l.now, leading)
	l.edges = nil
}

func newPair(t *testing.T, p Protocol) (*Decoder, *Encoder, *receiver) {
	r := &receiver{}
	d, err := NewDecoder(r, p)
	require.NoError(t, err)
	e, err := NewEncoder(p)
	require.NoError(t, err)
	return d, e, r
}

func TestRoundTrip(t *testing.T) {
	d, e, r := newPair(t, testProtocol)
	l := &line{now: 5000}

	e.EncodeData(l, []byte{0xb0}, 4, 1)
	l.play(d, true)

	require.Len(t, r.packets, 1)
	assert.Equal(t, packet{syncTime: 5000 + 300 + 3000, data: []byte{0xb0}, bits: 4, quality: 100}, r.packets[0])
}

func TestRoundTripLowFirst(t *testing.T) {
	p := testProtocol
	p.HighFirst = false
	d, e, r := newPair(t, p)
	l := &line{}

	e.EncodeData(l, []byte{0x50}, 4, 2)
	l.play(d, false)

	require.Len(t, r.packets, 2)
	for _, pkt := range r.packets {
		assert.Equal(t, []byte{0x50}, pkt.data)
		assert.Equal(t, 100.0, pkt.quality)
	}
}

func TestPresetRepetitions(t *testing.T) {
	for _, name := range Presets() {
		t.Run(name, func(t *testing.T) {
			p, err := Lookup(name)
			require.NoError(t, err)
			d, e, r := newPair(t, p)
			l := &line{now: 0xfff00000}

			e.EncodeData(l, []byte{0x12, 0x34, 0x56}, 24, 4)
			l.play(d, true)

			require.Len(t, r.packets, 4)
			for _, pkt := range r.packets {
				assert.Equal(t, []byte{0x12, 0x34, 0x56}, pkt.data)
				assert.Equal(t, 24, pkt.bits)
			}
		})
	}
}

func TestPartialPacketFlush(t *testing.T) {
	p := testProtocol
	p.MinBits, p.MaxBits = 8, 16
	d, e, r := newPair(t, p)
	l := &line{}

	e.EncodeData(l, []byte{0xa5, 0xc0}, 10, 1)
	port.TransmitPulse(l, 5000, 5000)
	l.play(d, true)

	require.Len(t, r.packets, 1)
	assert.Equal(t, 10, r.packets[0].bits)
	assert.Equal(t, []byte{0xa5, 0xc0}, r.packets[0].data)
}

func TestShortPacketDropped(t *testing.T) {
	p := testProtocol
	p.MinBits, p.MaxBits = 8, 16
	d, e, r := newPair(t, p)
	l := &line{}

	e.EncodeData(l, []byte{0xff}, 7, 1)
	port.TransmitPulse(l, 5000, 5000)
	l.play(d, true)

	assert.Empty(t, r.packets)
}

func TestSyncRestartsPacket(t *testing.T) {
	p := testProtocol
	p.MinBits, p.MaxBits = 8, 8
	d, e, r := newPair(t, p)
	l := &line{}

	// three bits of a broken packet, then a complete one
	e.EncodeData(l, []byte{0xe0}, 3, 1)
	e.EncodeData(l, []byte{0x81}, 8, 1)
	l.play(d, true)

	require.Len(t, r.packets, 1)
	assert.Equal(t, []byte{0x81}, r.packets[0].data)
	assert.True(t, d.synced)
	assert.Zero(t, d.bits)
}

func TestSyncAlwaysResynchronizes(t *testing.T) {
	d, _, r := newPair(t, testProtocol)

	for _, prepare := range []func(){
		func() {},
		func() { d.HandleMissedEdges() },
		func() { d.synced = true; d.storeBit(true); d.storeBit(true) },
		func() { d.synced = false; d.deltaPowerSum = 1234 },
	} {
		prepare()
		l := &line{now: 100}
		port.TransmitPulse(l, testProtocol.Sync.First, testProtocol.Sync.Second)
		l.play(d, true)

		assert.True(t, d.synced)
		assert.Zero(t, d.bits)
		assert.Zero(t, d.deltaPowerSum)
	}
	assert.Empty(t, r.packets)
}

func TestDataBitWinsOverSync(t *testing.T) {
	p := testProtocol
	// the one pulse also matches the sync pulse
	p.Sync = Pair{900, 350}
	d, _, r := newPair(t, p)

	d.HandleMissedEdges()
	l := &line{}
	port.TransmitPulses(l, 900, 300, 4)
	l.play(d, true)

	require.Len(t, r.packets, 1)
	assert.Equal(t, []byte{0xf0}, r.packets[0].data)
}

func TestMissedEdgesResumesData(t *testing.T) {
	d, e, r := newPair(t, testProtocol)
	l := &line{}

	// the sync pulse got lost, the data bits follow the gap
	e.EncodeData(l, []byte{0x90}, 4, 1)
	l.edges = l.edges[2:]
	d.HandleMissedEdges()
	l.play(d, true)

	require.Len(t, r.packets, 1)
	assert.Equal(t, []byte{0x90}, r.packets[0].data)
}

func TestQualityDecreasesWithOffset(t *testing.T) {
	last := 101.0
	for offset := port.Microseconds(0); offset <= testProtocol.Tolerance; offset += 10 {
		d, e, r := newPair(t, testProtocol)
		l := &line{offset: offset}

		e.EncodeData(l, []byte{0xb0}, 4, 1)
		l.play(d, true)

		require.Len(t, r.packets, 1, "offset %d", offset)
		q := r.packets[0].quality
		assert.Less(t, q, last, "offset %d", offset)
		assert.InDelta(t, 100*(1-float64(offset)/float64(testProtocol.Tolerance)), q, 1e-9)
		last = q
	}
	assert.InDelta(t, 0, last, 1e-9)
}

func TestQualityIsNotClamped(t *testing.T) {
	d, _, _ := newPair(t, testProtocol)

	// one bit, four durations off by twice the tolerance
	d.bits = 1
	d.deltaPowerSum = 4 * 200 * 200
	assert.InDelta(t, -100, d.quality(), 1e-9)
}

func TestQualityZeroTolerance(t *testing.T) {
	p := testProtocol
	p.Tolerance = 0
	d, e, r := newPair(t, p)
	l := &line{}

	e.EncodeData(l, []byte{0x30}, 4, 1)
	l.play(d, true)

	require.Len(t, r.packets, 1)
	assert.Equal(t, 100.0, r.packets[0].quality)
}

func TestBitOverflowDiscarded(t *testing.T) {
	d, _, _ := newPair(t, testProtocol)

	for i := 0; i < MaxBits+10; i++ {
		d.storeBit(true)
	}
	assert.Equal(t, MaxBits, d.bits)
}

func TestEncoderPulses(t *testing.T) {
	_, e, _ := newPair(t, testProtocol)
	l := &line{}

	e.EncodeData(l, []byte{0x80}, 2, 1)

	assert.Equal(t, []port.Edge{
		{Time: 0, Rising: true}, {Time: 300},
		{Time: 3300, Rising: true}, {Time: 4200},
		{Time: 4500, Rising: true}, {Time: 4800},
	}, l.edges)
	assert.Equal(t, port.Microseconds(5700), l.now)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, testProtocol.Validate())

	p := testProtocol
	p.MaxBits = MaxBits + 1
	assert.ErrorIs(t, p.Validate(), ErrInvalidProtocol)

	p = testProtocol
	p.MinBits = 5
	assert.ErrorIs(t, p.Validate(), ErrInvalidProtocol)

	p = testProtocol
	p.Zero.Second = 0
	_, err := NewDecoder(&receiver{}, p)
	assert.ErrorIs(t, err, ErrInvalidProtocol)

	_, err = Lookup("nope")
	assert.ErrorIs(t, err, ErrUnknownProtocol)
}
