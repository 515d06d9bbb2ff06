package port

// Splitter connects two processors to a single signal source.
type Splitter struct {
	first  Processor
	second Processor
}

// NewSplitter returns a Splitter forwarding to first and then to second.
func NewSplitter(first, second Processor) *Splitter {
	return &Splitter{first: first, second: second}
}

// HandleEdge handles the edge in both attached processors.
func (s *Splitter) HandleEdge(time Microseconds, rising bool) {
	s.first.HandleEdge(time, rising)
	s.second.HandleEdge(time, rising)
}

// HandleMissedEdges informs both attached processors.
func (s *Splitter) HandleMissedEdges() {
	s.first.HandleMissedEdges()
	s.second.HandleMissedEdges()
}

// Fanout composes any number of processors into a single one by chaining splitters.
// Edges are delivered in argument order. Fanout returns nil if ps is empty.
func Fanout(ps ...Processor) Processor {
	switch len(ps) {
	case 0:
		return nil
	case 1:
		return ps[0]
	default:
		return NewSplitter(ps[0], Fanout(ps[1:]...))
	}
}
