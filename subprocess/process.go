// Package subprocess starts and supervises the agent CLI process, exposing
// its stdio pipes and a graceful-termination protocol.
package subprocess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrSpawn is returned when the child process cannot be started.
var ErrSpawn = errors.New("subprocess: spawn failed")

// Options configures how the child process is started.
type Options struct {
	// Dir is the child's working directory. Empty means inherit.
	Dir string
	// Env is overlaid on the inherited environment.
	Env map[string]string
	// Unset names environment variables removed from the inherited
	// environment before the overlay is applied.
	Unset []string
	// ReplaceEnv starts the child with exactly Env instead of overlaying
	// it on the parent's environment.
	ReplaceEnv bool
	// Stderr receives the child's stderr. Nil discards it.
	Stderr io.Writer
}

// Process is a running child process with piped stdin and stdout.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	done     chan struct{}
	exitCode int
	waitErr  error

	termOnce sync.Once
}

// Start launches executable with args. The executable is resolved through
// PATH unless it contains a path separator. Node scripts (.js, .mjs, .cjs)
// are run through the node interpreter.
func Start(executable string, args []string, opts Options) (*Process, error) {
	if IsNodeScript(executable) {
		args = append([]string{executable}, args...)
		executable = "node"
	}

	cmd := exec.Command(executable, args...)
	cmd.Dir = opts.Dir
	cmd.Env = buildEnv(opts)
	cmd.Stderr = opts.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrSpawn, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrSpawn, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawn, executable, err)
	}

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		done:   make(chan struct{}),
	}
	go p.reap()
	return p, nil
}

// reap waits for the child and records its exit status.
func (p *Process) reap() {
	defer close(p.done)
	err := p.cmd.Wait()
	p.exitCode = p.cmd.ProcessState.ExitCode()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		p.waitErr = err
	}
}

// Stdin is the child's stdin pipe.
func (p *Process) Stdin() io.WriteCloser { return p.stdin }

// Stdout is the child's stdout pipe.
func (p *Process) Stdout() io.ReadCloser { return p.stdout }

// PID returns the child's process id.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Running reports whether the child has not yet exited.
func (p *Process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the child exits or ctx expires, returning the exit code.
func (p *Process) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.done:
		return p.exitCode, p.waitErr
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// TryWait returns the exit code if the child has already exited.
func (p *Process) TryWait() (int, bool) {
	select {
	case <-p.done:
		return p.exitCode, true
	default:
		return 0, false
	}
}

// Terminate shuts the child down: stdin is closed so the child sees EOF, a
// termination signal is sent, and after grace the child is killed outright.
// Blocks until the child has exited. Safe to call multiple times.
func (p *Process) Terminate(grace time.Duration) error {
	p.termOnce.Do(func() {
		_ = p.stdin.Close()
		_ = terminateProcess(p.cmd.Process)

		select {
		case <-p.done:
		case <-time.After(grace):
			_ = killProcess(p.cmd.Process)
			<-p.done
		}
	})
	<-p.done
	return p.waitErr
}

// Kill forcibly kills the child without waiting for it to exit.
func (p *Process) Kill() {
	_ = killProcess(p.cmd.Process)
}

// IsNodeScript reports whether path looks like a Node.js entry point rather
// than a native executable.
func IsNodeScript(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".mjs", ".cjs":
		return true
	}
	return false
}

// buildEnv assembles the child environment from the parent environment, the
// unset list, and the overlay.
func buildEnv(opts Options) []string {
	if opts.ReplaceEnv {
		env := make([]string, 0, len(opts.Env))
		for k, v := range opts.Env {
			env = append(env, k+"="+v)
		}
		return env
	}

	env := os.Environ()
	if len(opts.Unset) > 0 || len(opts.Env) > 0 {
		filtered := env[:0:0]
		for _, kv := range env {
			name, _, _ := strings.Cut(kv, "=")
			if envContains(opts.Unset, name) || mapContains(opts.Env, name) {
				continue
			}
			filtered = append(filtered, kv)
		}
		env = filtered
	}
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}
	return env
}

func envContains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func mapContains(m map[string]string, name string) bool {
	_, ok := m[name]
	return ok
}
