// Package runner executes a built curl-impersonate invocation and captures its output.
package runner

import (
	"context"
	"strings"
)

// Command is one invocation. Line is the shell rendering of the arguments, Argv the same
// arguments as a vector; runners use whichever suits them.
type Command struct {
	Path string
	Line string
	Argv []string
}

// String returns the full shell command line.
func (c Command) String() string {
	return strings.TrimSpace(c.Path + " " + c.Line)
}

// Output holds everything the process wrote. Stdout is the response body, Stderr the
// verbose diagnostic trace.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner runs a command to completion. A non-nil error means the process could not be
// started or did not exit cleanly; Output still holds whatever was captured.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// Func adapts a function to the Runner interface.
type Func func(ctx context.Context, cmd Command) (Output, error)

func (f Func) Run(ctx context.Context, cmd Command) (Output, error) {
	return f(ctx, cmd)
}
