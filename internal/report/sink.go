package report

import "sync/atomic"

// Sink consumes the reporting side channel of a run: one Begin, the trace
// events in order, then one Finish.
type Sink interface {
	Begin(info RunInfo)
	Emit(ev Event)
	Finish(s Summary)
}

// Multi fans out to every sink in order.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

type multi []Sink

func (m multi) Begin(info RunInfo) {
	for _, s := range m {
		s.Begin(info)
	}
}

func (m multi) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}

func (m multi) Finish(sum Summary) {
	for _, s := range m {
		s.Finish(sum)
	}
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Begin(RunInfo)  {}
func (discard) Emit(Event)     {}
func (discard) Finish(Summary) {}

// Clock is the monotonic logical clock stamping trace events. Step and
// transition events share it, so seq orders them as they happened.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0. The first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
