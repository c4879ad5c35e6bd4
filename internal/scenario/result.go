package scenario

import "time"

// Result is the outcome of one scenario run. Pass is true only when there are no errors and
// every client completed its script.
type Result struct {
	Scenario  string         `json:"scenario"`
	Endpoint  string         `json:"endpoint"`
	Staggered bool           `json:"staggered"`
	Pass      bool           `json:"pass"`
	Clients   []ClientResult `json:"clients"`
	Errors    []string       `json:"errors,omitempty"`
	Duration  time.Duration  `json:"duration_ns"`

	ServerStdout string `json:"server_stdout,omitempty"`
	ServerStderr string `json:"server_stderr,omitempty"`
}

type ClientResult struct {
	Name      string        `json:"name"`
	JoinDelay time.Duration `json:"join_delay_ns"`
	Steps     []StepResult  `json:"steps"`
	Error     string        `json:"error,omitempty"`
}

// StepResult is one repetition of a step.
type StepResult struct {
	Step    string        `json:"step"`
	Method  string        `json:"method,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
	// Timeout is the bound of a wait step.
	Timeout time.Duration `json:"timeout_ns,omitempty"`
	OK      bool          `json:"ok"`
	Error   string        `json:"error,omitempty"`
}

// Completed reports whether the client ran its whole script without error.
func (c ClientResult) Completed() bool { return c.Error == "" }

// Failed counts clients that did not complete.
func (r *Result) Failed() int {
	n := 0
	for _, c := range r.Clients {
		if !c.Completed() {
			n++
		}
	}
	return n
}
