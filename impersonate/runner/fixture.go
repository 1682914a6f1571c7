package runner

import (
	"context"
	"os"
	"sync"
)

// Fixture replays recorded output instead of starting a process. It keeps every command it
// was asked to run.
type Fixture struct {
	Output Output
	Err    error

	mu       sync.Mutex
	commands []Command
}

// NewFixture returns a Fixture replaying the given stdout and stderr.
func NewFixture(stdout, stderr string) *Fixture {
	return &Fixture{Output: Output{Stdout: []byte(stdout), Stderr: []byte(stderr)}}
}

// NewFixtureFromFiles reads a recorded body and trace from disk.
func NewFixtureFromFiles(stdoutPath, stderrPath string) (*Fixture, error) {
	stdout, err := os.ReadFile(stdoutPath)
	if err != nil {
		return nil, err
	}
	stderr, err := os.ReadFile(stderrPath)
	if err != nil {
		return nil, err
	}
	return &Fixture{Output: Output{Stdout: stdout, Stderr: stderr}}, nil
}

func (f *Fixture) Run(_ context.Context, cmd Command) (Output, error) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()
	return f.Output, f.Err
}

// Commands returns the commands run so far.
func (f *Fixture) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.commands...)
}
