package core

import (
	"fmt"
	"strings"

	"github.com/oleksandrkozlov/preferans/internal/domain"
)

// Predicate selects the envelope a wait is interested in.
// String is used in timeout reports, so it should read like a condition.
type Predicate interface {
	Match(env domain.Envelope) bool
	String() string
}

type funcPredicate struct {
	name string
	fn   func(domain.Envelope) bool
}

func (p funcPredicate) Match(env domain.Envelope) bool { return p.fn(env) }
func (p funcPredicate) String() string                 { return p.name }

// Func names an arbitrary match function.
func Func(name string, fn func(domain.Envelope) bool) Predicate {
	return funcPredicate{name: name, fn: fn}
}

// MethodIs matches envelopes whose method equals method.
func MethodIs(method string) Predicate {
	return Func(fmt.Sprintf("method == %q", method), func(env domain.Envelope) bool {
		return env.Method == method
	})
}

// MethodIn matches any of methods.
func MethodIn(methods ...string) Predicate {
	set := make(map[string]struct{}, len(methods))
	quoted := make([]string, 0, len(methods))
	for _, m := range methods {
		set[m] = struct{}{}
		quoted = append(quoted, fmt.Sprintf("%q", m))
	}
	return Func("method in ["+strings.Join(quoted, ", ")+"]", func(env domain.Envelope) bool {
		_, ok := set[env.Method]
		return ok
	})
}

// Any matches every envelope.
func Any() Predicate {
	return Func("any", func(domain.Envelope) bool { return true })
}

func And(ps ...Predicate) Predicate {
	return Func(join(ps, " && "), func(env domain.Envelope) bool {
		for _, p := range ps {
			if !p.Match(env) {
				return false
			}
		}
		return true
	})
}

func Or(ps ...Predicate) Predicate {
	return Func(join(ps, " || "), func(env domain.Envelope) bool {
		for _, p := range ps {
			if p.Match(env) {
				return true
			}
		}
		return false
	})
}

func Not(p Predicate) Predicate {
	return Func("!("+p.String()+")", func(env domain.Envelope) bool { return !p.Match(env) })
}

func join(ps []Predicate, sep string) string {
	if len(ps) == 1 {
		return ps[0].String()
	}
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		parts = append(parts, "("+p.String()+")")
	}
	return strings.Join(parts, sep)
}
