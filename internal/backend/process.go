// ABOUTME: Process supervisor: spawns the backend with piped stdin/stdout, stderr passed through
// ABOUTME: Exit watcher closes exited; stop is idempotent (kill, wait, release pipes)

package backend

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
)

type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File

	exited  chan struct{}
	waitErr error

	stopOnce sync.Once
}

// startProcess spawns opts.Command. Stdout is an os.Pipe rather than
// cmd.StdoutPipe so that Wait never closes the read end under the reader.
func startProcess(opts Options) (*process, error) {
	if opts.Command == "" {
		return nil, ioError("spawning backend", errors.New("no command configured"))
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	cmd.Stderr = opts.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, ioError("creating stdin pipe", err)
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, ioError("creating stdout pipe", err)
	}
	cmd.Stdout = stdoutW

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, ioError("starting "+opts.Command, err)
	}
	// The child holds its own copy; ours would keep EOF from ever arriving.
	stdoutW.Close()

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdoutR,
		exited: make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

func (p *process) wait() {
	p.waitErr = p.cmd.Wait()
	close(p.exited)
}

func (p *process) pid() int {
	return p.cmd.Process.Pid
}

// closeStdout unblocks a reader stuck on a pipe that a grandchild still holds.
func (p *process) closeStdout() {
	p.stdout.Close()
}

// stop kills the child and waits for it to be reaped. Safe to call repeatedly.
func (p *process) stop() {
	p.stopOnce.Do(func() {
		_ = p.cmd.Process.Kill()
		<-p.exited
		p.stdin.Close()
		p.stdout.Close()
	})
}
