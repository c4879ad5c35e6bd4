package orch

import "fmt"

// FailurePolicy decides what happens to sibling session tasks when one of them fails.
type FailurePolicy int

const (
	// ContinueOnFailure lets every task run to completion; all errors are reported.
	ContinueOnFailure FailurePolicy = iota
	// CancelOnFirstFailure cancels the context of the remaining tasks and reports the first error.
	CancelOnFirstFailure
)

func (p FailurePolicy) String() string {
	switch p {
	case ContinueOnFailure:
		return "continue"
	case CancelOnFirstFailure:
		return "cancel"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "continue":
		return ContinueOnFailure, nil
	case "cancel":
		return CancelOnFirstFailure, nil
	default:
		return 0, fmt.Errorf("unknown failure policy %q (want continue or cancel)", s)
	}
}
