package report

import (
	"fmt"
	"io"
)

// JSON writes the trace as newline-delimited canonical JSON: one object
// per event, then one object of kind "summary".
type JSON struct {
	out io.Writer
	err error
}

// NewJSON creates a JSON reporter writing to out.
func NewJSON(out io.Writer) *JSON {
	return &JSON{out: out}
}

// Err returns the first write or encoding error.
func (j *JSON) Err() error {
	return j.err
}

func (j *JSON) write(m map[string]any) {
	if j.err != nil {
		return
	}
	data, err := MarshalCanonical(m)
	if err != nil {
		j.err = fmt.Errorf("encode report: %w", err)
		return
	}
	data = append(data, '\n')
	if _, err := j.out.Write(data); err != nil {
		j.err = fmt.Errorf("write report: %w", err)
	}
}

// Begin implements Sink.
func (j *JSON) Begin(info RunInfo) {
	m := map[string]any{"kind": "begin", "run_id": info.RunID}
	if info.Selector != "" {
		m["selector"] = info.Selector
	}
	j.write(m)
}

// Emit implements Sink.
func (j *JSON) Emit(ev Event) {
	j.write(ev.CanonicalMap())
}

// Finish implements Sink.
func (j *JSON) Finish(s Summary) {
	m := s.CanonicalMap()
	m["kind"] = "summary"
	m["run_id"] = s.RunID
	if s.TransitionError != "" {
		m["transition_error"] = s.TransitionError
	}
	j.write(m)
}
