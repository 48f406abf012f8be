// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package processtest provides a scripted process.Runner for tests.
//
// Tests register handlers keyed by a match function; each invocation
// is recorded so assertions can check exactly which external commands
// a stage ran and in which order:
//
//	runner := processtest.New()
//	runner.On(processtest.Args("-m", "pip", "install"), func(inv process.Invocation) (process.Result, error) {
//	    return process.Result{}, nil
//	})
package processtest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/bureau-foundation/bundlepipe/lib/process"
)

// Handler produces the outcome of one invocation. Handlers may create
// files to simulate the command's side effects.
type Handler func(invocation process.Invocation) (process.Result, error)

// Matcher selects the invocations a handler applies to.
type Matcher func(invocation process.Invocation) bool

type rule struct {
	match   Matcher
	handler Handler
}

// Runner is a process.Runner that dispatches to registered handlers.
// Invocations without a matching handler fail with exit code 127,
// mirroring a shell's "command not found".
type Runner struct {
	mu    sync.Mutex
	rules []rule
	calls []process.Invocation
}

// New returns an empty Runner.
func New() *Runner {
	return &Runner{}
}

// On registers handler for invocations accepted by match. Rules are
// checked in registration order; the first match wins.
func (r *Runner) On(match Matcher, handler Handler) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{match: match, handler: handler})
	return r
}

// Run implements process.Runner.
func (r *Runner) Run(ctx context.Context, invocation process.Invocation) (process.Result, error) {
	r.mu.Lock()
	invocation.Args = slices.Clone(invocation.Args)
	r.calls = append(r.calls, invocation)
	rules := slices.Clone(r.rules)
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return process.Result{ExitCode: -1}, err
	}

	for _, candidate := range rules {
		if candidate.match(invocation) {
			result, err := candidate.handler(invocation)
			if invocation.Output != nil && len(result.Output) > 0 {
				_, _ = invocation.Output.Write(result.Output)
			}
			return result, err
		}
	}
	return process.Result{
		ExitCode: 127,
		Output:   []byte(fmt.Sprintf("processtest: no handler for %s", invocation)),
	}, nil
}

// Calls returns a copy of all recorded invocations.
func (r *Runner) Calls() []process.Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// CommandLines returns the recorded invocations rendered as strings.
func (r *Runner) CommandLines() []string {
	calls := r.Calls()
	lines := make([]string, len(calls))
	for index, call := range calls {
		lines[index] = call.String()
	}
	return lines
}

// Any matches every invocation.
func Any() Matcher {
	return func(process.Invocation) bool { return true }
}

// Name matches invocations of the named executable (compared by exact
// string or by path suffix "/name").
func Name(name string) Matcher {
	return func(invocation process.Invocation) bool {
		return invocation.Name == name || strings.HasSuffix(invocation.Name, "/"+name)
	}
}

// Args matches invocations whose argument list starts with prefix.
func Args(prefix ...string) Matcher {
	return func(invocation process.Invocation) bool {
		if len(invocation.Args) < len(prefix) {
			return false
		}
		return slices.Equal(invocation.Args[:len(prefix)], prefix)
	}
}

// Contains matches invocations with argument among their arguments.
func Contains(argument string) Matcher {
	return func(invocation process.Invocation) bool {
		return slices.Contains(invocation.Args, argument)
	}
}

// All matches when every matcher matches.
func All(matchers ...Matcher) Matcher {
	return func(invocation process.Invocation) bool {
		for _, match := range matchers {
			if !match(invocation) {
				return false
			}
		}
		return true
	}
}

// Exit returns a handler that reports the given exit code and output.
func Exit(code int, output string) Handler {
	return func(process.Invocation) (process.Result, error) {
		return process.Result{ExitCode: code, Output: []byte(output)}, nil
	}
}

// Succeed returns a handler that exits zero with the given output.
func Succeed(output string) Handler {
	return Exit(0, output)
}
