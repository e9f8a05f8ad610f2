package report

// Recorder keeps the whole trace in memory. The harness asserts against
// it and tests use it to inspect runs.
type Recorder struct {
	Info    RunInfo
	Events  []Event
	Summary *Summary
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{Events: []Event{}}
}

// Begin implements Sink.
func (r *Recorder) Begin(info RunInfo) { r.Info = info }

// Emit implements Sink.
func (r *Recorder) Emit(ev Event) { r.Events = append(r.Events, ev) }

// Finish implements Sink.
func (r *Recorder) Finish(s Summary) { r.Summary = &s }

// Steps returns the step events in order.
func (r *Recorder) Steps() []Event { return r.filter(KindStep) }

// Transitions returns the transition events in order.
func (r *Recorder) Transitions() []Event { return r.filter(KindTransition) }

// Notices returns the notice events in order.
func (r *Recorder) Notices() []Event { return r.filter(KindNotice) }

func (r *Recorder) filter(kind Kind) []Event {
	out := []Event{}
	for _, ev := range r.Events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// StepsOf returns the step names reported for unit, in order, with their
// outcomes as "step:outcome".
func (r *Recorder) StepsOf(unit string) []string {
	out := []string{}
	for _, ev := range r.Events {
		if ev.Kind == KindStep && ev.Unit == unit {
			out = append(out, ev.Step+":"+ev.Outcome)
		}
	}
	return out
}
