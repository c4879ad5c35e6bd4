// Package report renders scenario results for people (Text) and for tools (JSON).
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-json"

	"github.com/oleksandrkozlov/preferans/internal/scenario"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Formats lists the accepted values of Write's format.
var Formats = []string{FormatText, FormatJSON}

// Write renders res in the given format.
func Write(w io.Writer, format string, res *scenario.Result) error {
	switch format {
	case FormatText, "":
		return Text(w, res)
	case FormatJSON:
		return JSON(w, res)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// JSON writes res as one indented JSON document.
func JSON(w io.Writer, res *scenario.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

type styles struct {
	pass  lipgloss.Style
	fail  lipgloss.Style
	title lipgloss.Style
	dim   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		pass:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		fail:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		title: r.NewStyle().Bold(true),
		dim:   r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// Text writes a human readable summary. Colors are only emitted when w is a terminal.
func Text(w io.Writer, res *scenario.Result) error {
	st := newStyles(lipgloss.NewRenderer(w))
	var b strings.Builder

	status := st.pass.Render("PASS")
	if !res.Pass {
		status = st.fail.Render("FAIL")
	}
	fmt.Fprintf(&b, "%s %s\n", status, st.title.Render(res.Scenario))
	fmt.Fprintf(&b, "endpoint  %s\n", res.Endpoint)
	fmt.Fprintf(&b, "stagger   %s\n", onOff(res.Staggered))
	fmt.Fprintf(&b, "duration  %s\n", res.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "clients   %d/%d completed\n", len(res.Clients)-res.Failed(), len(res.Clients))

	for _, c := range res.Clients {
		state := st.pass.Render("ok")
		if !c.Completed() {
			state = st.fail.Render("failed")
		}
		fmt.Fprintf(&b, "\n%s (+%s) %s\n", st.title.Render(c.Name), c.JoinDelay, state)
		for _, s := range c.Steps {
			writeStep(&b, st, s)
		}
		if len(c.Steps) == 0 && c.Error != "" {
			fmt.Fprintf(&b, "  %s\n", st.dim.Render(c.Error))
		}
	}

	if len(res.Errors) > 0 {
		fmt.Fprintf(&b, "\n%s\n", st.fail.Render("errors"))
		for _, e := range res.Errors {
			writeIndented(&b, e)
		}
	}
	if !res.Pass {
		writeOutput(&b, st, "server stdout", res.ServerStdout)
		writeOutput(&b, st, "server stderr", res.ServerStderr)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeStep(b *strings.Builder, st styles, s scenario.StepResult) {
	if s.OK {
		fmt.Fprintf(b, "  %s    %s  %s %s\n", st.pass.Render("ok"), s.Step, s.Method, st.dim.Render(s.Elapsed.Round(time.Millisecond).String()))
		return
	}
	fmt.Fprintf(b, "  %s  %s", st.fail.Render("FAIL"), s.Step)
	if s.Timeout > 0 {
		fmt.Fprintf(b, "  timeout %s", s.Timeout)
	}
	b.WriteString("\n")
	if s.Error != "" {
		fmt.Fprintf(b, "        %s\n", s.Error)
	}
}

func writeOutput(b *strings.Builder, st styles, title, out string) {
	out = strings.TrimRight(out, "\n")
	if out == "" {
		return
	}
	fmt.Fprintf(b, "\n%s\n", st.dim.Render(title))
	writeIndented(b, out)
}

func writeIndented(b *strings.Builder, s string) {
	for _, line := range strings.Split(s, "\n") {
		fmt.Fprintf(b, "  %s\n", line)
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
