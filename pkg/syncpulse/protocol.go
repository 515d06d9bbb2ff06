package syncpulse

import (
	"errors"
	"fmt"
	"sort"

	"rc433/pkg/port"
)

// MaxBits is the largest packet a decoder can assemble.
const MaxBits = 128

var (
	ErrUnknownProtocol = errors.New("unknown protocol")
	ErrInvalidProtocol = errors.New("invalid protocol")
)

// Pair is the timing of one pulse: the first and the second level duration.
type Pair struct {
	First  port.Microseconds `json:"first" yaml:"first"`
	Second port.Microseconds `json:"second" yaml:"second"`
}

// Protocol defines the line code of a sync pulse protocol.
// Each packet starts with the Sync pulse followed by one Zero or One pulse per bit.
type Protocol struct {
	Name string `json:"name" yaml:"name"`
	Sync Pair   `json:"sync" yaml:"sync"`
	Zero Pair   `json:"zero" yaml:"zero"`
	One  Pair   `json:"one" yaml:"one"`
	// Tolerance is the maximum deviation of a received duration.
	Tolerance port.Microseconds `json:"tolerance" yaml:"tolerance"`
	// HighFirst defines that a pulse starts with the high level.
	HighFirst bool `json:"highfirst" yaml:"highfirst"`
	MinBits   int  `json:"minbits" yaml:"minbits"`
	MaxBits   int  `json:"maxbits" yaml:"maxbits"`
}

// EMOS sockets send 4 repetitions of 24 bits using encoding A followed by
// 4 repetitions of the same 24 bits using encoding B.
var presets = map[string]Protocol{
	"emos-a": {
		Name:      "emos-a",
		Sync:      Pair{272, 2381},
		Zero:      Pair{299, 1235},
		One:       Pair{1076, 480},
		Tolerance: 50,
		HighFirst: true,
		MinBits:   24,
		MaxBits:   24,
	},
	"emos-b": {
		Name:      "emos-b",
		Sync:      Pair{2948, 7302},
		Zero:      Pair{401, 1134},
		One:       Pair{918, 617},
		Tolerance: 50,
		HighFirst: true,
		MinBits:   24,
		MaxBits:   24,
	},
}

// Lookup returns the built-in protocol name.
func Lookup(name string) (Protocol, error) {
	p, ok := presets[name]
	if !ok {
		return Protocol{}, fmt.Errorf("%w: %q", ErrUnknownProtocol, name)
	}
	return p, nil
}

// Presets returns the names of the built-in protocols.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks the packet length bounds and that all durations are set.
func (p Protocol) Validate() error {
	switch {
	case p.MinBits < 1 || p.MaxBits < p.MinBits:
		return fmt.Errorf("%w %q: bits must satisfy 1 <= minbits (%d) <= maxbits (%d)", ErrInvalidProtocol, p.Name, p.MinBits, p.MaxBits)
	case p.MaxBits > MaxBits:
		return fmt.Errorf("%w %q: maxbits %d exceeds %d", ErrInvalidProtocol, p.Name, p.MaxBits, MaxBits)
	}

	for _, d := range []port.Microseconds{p.Sync.First, p.Sync.Second, p.Zero.First, p.Zero.Second, p.One.First, p.One.Second} {
		if d == 0 {
			return fmt.Errorf("%w %q: pulse durations must not be zero", ErrInvalidProtocol, p.Name)
		}
	}

	return nil
}

// matches reports whether first and second are the pair p within tolerance.
func (p Pair) matches(first, second, tolerance port.Microseconds) bool {
	return port.Within(first, p.First, tolerance) && port.Within(second, p.Second, tolerance)
}
