// Package report carries the reporting side channel of a self-test run.
//
// The runner stamps every scheduler step and transition state change with a
// shared logical clock and hands it to a Sink as an Event. Sinks render the
// trace for people (Console), for machines (JSON, canonical and line
// delimited), keep it in memory (Recorder) or journal it to SQLite
// (Journal).
package report
