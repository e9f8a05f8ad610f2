package report

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var stepVerbs = map[string]string{
	"setup":    "Setting up",
	"execute":  "Executing",
	"teardown": "Tearing down",
}

// Console writes a human-readable report, in the wording firmware self
// tests have always used on the console.
type Console struct {
	out     io.Writer
	color   bool
	verbose bool
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithColor forces colored output on or off. By default color is used only
// when the output is a terminal.
func WithColor(on bool) ConsoleOption {
	return func(c *Console) {
		c.color = on
	}
}

// WithVerbose also prints every transition state change.
func WithVerbose(on bool) ConsoleOption {
	return func(c *Console) {
		c.verbose = on
	}
}

// NewConsole creates a console reporter writing to out.
func NewConsole(out io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{out: out, color: isTerminal(out)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (c *Console) paint(style lipgloss.Style, s string) string {
	if !c.color {
		return s
	}
	return style.Render(s)
}

// Begin implements Sink.
func (c *Console) Begin(info RunInfo) {
	fmt.Fprintln(c.out)
	if info.Selector != "" {
		fmt.Fprintf(c.out, "Testing EFI API implementation (%s)\n", info.Selector)
	} else {
		fmt.Fprintln(c.out, "Testing EFI API implementation")
	}
	if c.verbose && info.RunID != "" {
		fmt.Fprintln(c.out, c.paint(mutedStyle, "run "+info.RunID))
	}
	fmt.Fprintln(c.out)
}

// Emit implements Sink.
func (c *Console) Emit(ev Event) {
	switch ev.Kind {
	case KindStep:
		c.step(ev)
	case KindTransition:
		c.transition(ev)
	case KindNotice:
		fmt.Fprintln(c.out, c.paint(warningStyle, ev.Message))
	}
}

func (c *Console) step(ev Event) {
	verb, ok := stepVerbs[ev.Step]
	if !ok {
		verb = ev.Step
	}
	if ev.Outcome == "success" {
		fmt.Fprintf(c.out, "%s '%s' %s\n", verb, ev.Unit, c.paint(successStyle, "succeeded"))
		return
	}
	fmt.Fprintf(c.out, "%s '%s' %s\n", verb, ev.Unit, c.paint(errorStyle, "failed"))
}

func (c *Console) transition(ev Event) {
	switch ev.To {
	case "committed":
		fmt.Fprintf(c.out, "Exiting boot services %s (attempt %d)\n", c.paint(successStyle, "succeeded"), ev.Attempt)
	case "stale_key_retry":
		fmt.Fprintln(c.out, c.paint(warningStyle,
			fmt.Sprintf("Memory map changed before exiting boot services, retrying (attempt %d)", ev.Attempt)))
	case "fatal":
		fmt.Fprintf(c.out, "Exiting boot services %s: %s\n", c.paint(errorStyle, "failed"), ev.Reason)
	default:
		if c.verbose {
			line := fmt.Sprintf("  transition attempt %d: %s -> %s (%s)", ev.Attempt, ev.From, ev.To, ev.Status)
			if ev.Reason != "" {
				line += " " + ev.Reason
			}
			fmt.Fprintln(c.out, c.paint(mutedStyle, line))
		}
	}
}

// Finish implements Sink.
func (c *Console) Finish(s Summary) {
	if !s.Matched {
		fmt.Fprintf(c.out, "\nTest '%s' not found\n", s.Selector)
		return
	}
	line := fmt.Sprintf("Summary: %d failures", s.Failures)
	if s.Failures > 0 {
		line = c.paint(errorStyle, line)
	} else {
		line = c.paint(successStyle, line)
	}
	fmt.Fprintf(c.out, "\n%s\n", line)
	if s.RuntimeSkipped {
		fmt.Fprintln(c.out, c.paint(errorStyle, "Exiting boot services failed, "+RuntimeSkippedNotice))
	}
	if s.ResetStatus != "" && s.ResetStatus != "EFI_SUCCESS" {
		fmt.Fprintln(c.out, c.paint(warningStyle, "Reset request returned "+s.ResetStatus))
	}
}
