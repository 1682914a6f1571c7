package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"k8s.io/klog/v2"
)

// Shell runs commands through a POSIX shell, blocking until the process exits.
type Shell struct {
	// Interpreter defaults to /bin/sh.
	Interpreter string
}

// NewShell returns a Shell using /bin/sh.
func NewShell() *Shell {
	return &Shell{Interpreter: "/bin/sh"}
}

// Run executes `<interpreter> -c "'<path>' <line>"`. Output is captured in full; there is no
// timeout besides ctx and whatever flags the command itself carries.
func (s *Shell) Run(ctx context.Context, cmd Command) (Output, error) {
	interpreter := s.Interpreter
	if interpreter == "" {
		interpreter = "/bin/sh"
	}

	line := "'" + strings.ReplaceAll(cmd.Path, "'", `'\''`) + "' " + cmd.Line

	var stdout, stderr bytes.Buffer
	proc := exec.CommandContext(ctx, interpreter, "-c", line)
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	klog.V(2).Infof("runner(shell): %s", line)
	err := proc.Run()

	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if proc.ProcessState != nil {
		out.ExitCode = proc.ProcessState.ExitCode()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, fmt.Errorf("%s exited with code %d", cmd.Path, exitErr.ExitCode())
		}
		return out, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}
	return out, nil
}
