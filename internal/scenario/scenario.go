// Package scenario describes harness runs as YAML: which players join, with which delays, and
// which envelopes each of them must observe in order.
package scenario

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oleksandrkozlov/preferans/internal/app/orch"
	"github.com/oleksandrkozlov/preferans/internal/core"
	"github.com/oleksandrkozlov/preferans/internal/domain"
)

// DefaultTimeout applies to every wait step without its own timeout.
const DefaultTimeout = 5 * time.Second

//go:embed default.yaml
var defaultScenario []byte

// Scenario defines one multi-client run.
type Scenario struct {
	// Name identifies the scenario in reports.
	Name string `yaml:"name"`

	Description string `yaml:"description,omitempty"`

	// Server overrides the configured host, port and extra arguments.
	Server *ServerSpec `yaml:"server,omitempty"`

	// Timeout bounds each wait step. Defaults to DefaultTimeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Expect is the script of every client that has none of its own.
	Expect []Step `yaml:"expect,omitempty"`

	Clients []Client `yaml:"clients"`
}

type ServerSpec struct {
	Host string   `yaml:"host,omitempty"`
	Port int      `yaml:"port,omitempty"`
	Args []string `yaml:"args,omitempty"`
}

type Client struct {
	Name      string        `yaml:"name"`
	JoinDelay time.Duration `yaml:"join_delay,omitempty"`
	Expect    []Step        `yaml:"expect,omitempty"`
}

// Step is either a wait (method or any_of) or a send.
type Step struct {
	// Method waits for the next envelope with this method.
	Method string `yaml:"method,omitempty"`

	// AnyOf waits for the next envelope with one of these methods.
	AnyOf []string `yaml:"any_of,omitempty"`

	// Forbid fails a wait step when one of these methods arrives before the awaited one.
	Forbid []string `yaml:"forbid,omitempty"`

	// Send writes an envelope with this method and an empty payload.
	Send string `yaml:"send,omitempty"`

	// Count repeats the step. Zero means once.
	Count int `yaml:"count,omitempty"`

	// Timeout overrides the scenario timeout for each repetition of this step.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

func (s Step) IsSend() bool { return s.Send != "" }

func (s Step) Times() int {
	if s.Count <= 0 {
		return 1
	}
	return s.Count
}

// Predicate is what a wait step matches on.
func (s Step) Predicate() core.Predicate {
	if len(s.AnyOf) > 0 {
		return core.MethodIn(s.AnyOf...)
	}
	return core.MethodIs(s.Method)
}

// Forbidden matches the methods of Forbid, or nothing when it is empty.
func (s Step) Forbidden() core.Predicate {
	if len(s.Forbid) == 0 {
		return nil
	}
	return core.MethodIn(s.Forbid...)
}

func (s Step) String() string {
	var b strings.Builder
	if s.IsSend() {
		fmt.Fprintf(&b, "send %s", s.Send)
	} else {
		fmt.Fprintf(&b, "expect %s", s.Predicate())
	}
	if s.Count > 1 {
		fmt.Fprintf(&b, " x%d", s.Count)
	}
	if f := s.Forbidden(); f != nil {
		fmt.Fprintf(&b, ", forbid %s", f)
	}
	return b.String()
}

// StepsFor returns the script of client i.
func (sc *Scenario) StepsFor(i int) []Step {
	if steps := sc.Clients[i].Expect; len(steps) > 0 {
		return steps
	}
	return sc.Expect
}

// WaitTimeout is the effective timeout of step.
func (sc *Scenario) WaitTimeout(step Step) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	if sc.Timeout > 0 {
		return sc.Timeout
	}
	return DefaultTimeout
}

// ClientSpecs converts the clients for the orchestrator.
func (sc *Scenario) ClientSpecs() []orch.ClientSpec {
	out := make([]orch.ClientSpec, len(sc.Clients))
	for i, c := range sc.Clients {
		out[i] = orch.ClientSpec{Name: c.Name, JoinDelay: c.JoinDelay}
	}
	return out
}

// Default is the built-in three player scenario.
func Default() *Scenario {
	sc, err := Parse(defaultScenario)
	if err != nil {
		panic(fmt.Sprintf("embedded scenario: %v", err))
	}
	return sc
}

// Load reads a scenario file. Unknown fields are rejected so typos do not silently pass.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := Validate(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

// Validate reports every problem at once, each prefixed with its location.
func Validate(sc *Scenario) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if sc.Name == "" {
		add("name is required")
	}
	if sc.Timeout < 0 {
		add("timeout must not be negative")
	}
	if sc.Server != nil && (sc.Server.Port < 0 || sc.Server.Port > 65535) {
		add("server.port %d out of range", sc.Server.Port)
	}
	if len(sc.Clients) == 0 {
		add("clients list is required and must be non-empty")
	}
	for i, step := range sc.Expect {
		if err := validateStep(step); err != nil {
			add("expect[%d]: %w", i, err)
		}
	}

	seen := make(map[string]int, len(sc.Clients))
	for i, c := range sc.Clients {
		if c.Name == "" {
			add("clients[%d]: name is required", i)
		} else if j, dup := seen[c.Name]; dup {
			add("clients[%d]: name %q already used by clients[%d]", i, c.Name, j)
		} else {
			seen[c.Name] = i
		}
		if c.JoinDelay < 0 {
			add("clients[%d]: join_delay must not be negative", i)
		}
		if len(c.Expect) == 0 && len(sc.Expect) == 0 {
			add("clients[%d]: no expect steps and no scenario default", i)
		}
		for j, step := range c.Expect {
			if err := validateStep(step); err != nil {
				add("clients[%d].expect[%d]: %w", i, j, err)
			}
		}
	}
	return errors.Join(errs...)
}

func validateStep(s Step) error {
	set := 0
	for _, ok := range []bool{s.Method != "", len(s.AnyOf) > 0, s.Send != ""} {
		if ok {
			set++
		}
	}
	switch {
	case set == 0:
		return errors.New("one of method, any_of or send is required")
	case set > 1:
		return errors.New("method, any_of and send are mutually exclusive")
	case s.Count < 0:
		return errors.New("count must not be negative")
	case s.Timeout < 0:
		return errors.New("timeout must not be negative")
	case s.IsSend() && s.Timeout > 0:
		return errors.New("timeout has no effect on send")
	case s.IsSend() && len(s.Forbid) > 0:
		return errors.New("forbid has no effect on send")
	}
	for i, m := range s.AnyOf {
		if m == "" {
			return fmt.Errorf("any_of[%d] is empty", i)
		}
	}
	target := s.Predicate()
	for i, m := range s.Forbid {
		if m == "" {
			return fmt.Errorf("forbid[%d] is empty", i)
		}
		if target.Match(domain.Envelope{Method: m}) {
			return fmt.Errorf("forbid[%d]: %s is also awaited", i, m)
		}
	}
	return nil
}

// Apply overlays the scenario's server section on cfg.
func (sc *Scenario) Apply(cfg orch.Config) orch.Config {
	if sc.Server == nil {
		return cfg
	}
	if sc.Server.Host != "" {
		cfg.Host = sc.Server.Host
	}
	if sc.Server.Port != 0 {
		cfg.Port = sc.Server.Port
	}
	if len(sc.Server.Args) > 0 {
		cfg.Args = append(append([]string(nil), cfg.Args...), sc.Server.Args...)
	}
	return cfg
}
