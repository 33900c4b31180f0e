// Package process runs a worker as a child OS process that exchanges
// length-prefixed CBOR frames with the host over stdin and stdout.
// Anything the child writes to stderr is logged.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/worker"
	"github.com/GriffinCanCode/AgentOS/shell/internal/runtime/wire"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// ErrNotStarted is returned before Start succeeds
var ErrNotStarted = errors.New("process not started")

// Options configures a process runtime
type Options struct {
	Command string
	Args    []string
	Env     []string
	Dir     string
}

// Runtime supervises one child process
type Runtime struct {
	opts Options

	mu     sync.Mutex
	cmd    *exec.Cmd    // Protected by mu
	writer *wire.Writer // Protected by mu
	stdin  io.Closer    // Protected by mu

	link       worker.Link
	logger     *zap.Logger
	dispatcher *wire.Dispatcher
	done       chan struct{}
}

// New creates a runtime for a command
func New(opts Options) *Runtime {
	return &Runtime{opts: opts, done: make(chan struct{})}
}

// Start launches the child and sends it the init frame
func (r *Runtime) Start(ctx context.Context, link worker.Link) error {
	if r.opts.Command == "" {
		return fmt.Errorf("process runtime: empty command")
	}
	r.link = link
	r.logger = link.Logger().With(zap.String("runtime", "process"), zap.String("command", r.opts.Command))

	cmd := exec.Command(r.opts.Command, r.opts.Args...)
	cmd.Env = append(os.Environ(), r.opts.Env...)
	cmd.Dir = r.opts.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", r.opts.Command, err)
	}

	writer := wire.NewWriter(stdin, wire.CBOR)
	r.mu.Lock()
	r.cmd = cmd
	r.writer = writer
	r.stdin = stdin
	r.mu.Unlock()

	r.dispatcher = wire.NewDispatcher(link, writer.WriteFrame)
	r.logger.Info("Worker process started", zap.Int("pid", cmd.Process.Pid))

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		r.readFrames(stdout)
	}()
	go func() {
		defer readers.Done()
		r.readStderr(stderr)
	}()
	go func() {
		// Pipes must be drained before Wait closes them
		readers.Wait()
		err := cmd.Wait()
		r.dispatcher.Close()
		close(r.done)
		r.logger.Info("Worker process exited", zap.Error(err))
		r.link.Exited(err)
	}()

	if err := writer.WriteFrame(wire.Init(link)); err != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("send init frame: %w", err)
	}
	return nil
}

// Deliver writes a bus message to the child
func (r *Runtime) Deliver(msg *types.Message) error {
	return r.write(wire.FromMessage(msg))
}

// Control writes a host hint to the child. A close hint also closes
// stdin so children that only watch for EOF still exit.
func (r *Runtime) Control(c worker.Control) error {
	if err := r.write(wire.FromControl(c)); err != nil {
		return err
	}
	if c.Kind == worker.ControlClose {
		r.mu.Lock()
		stdin := r.stdin
		r.mu.Unlock()
		if stdin != nil {
			return stdin.Close()
		}
	}
	return nil
}

// Kill terminates the child
func (r *Runtime) Kill() error {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return ErrNotStarted
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Done is closed once the child has been reaped
func (r *Runtime) Done() <-chan struct{} {
	return r.done
}

func (r *Runtime) write(f wire.Frame) error {
	r.mu.Lock()
	writer := r.writer
	r.mu.Unlock()
	if writer == nil {
		return ErrNotStarted
	}
	return writer.WriteFrame(f)
}

func (r *Runtime) readFrames(stdout io.Reader) {
	reader := wire.NewReader(stdout, wire.CBOR)
	for {
		f, err := reader.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.logger.Warn("Worker stream broken", zap.Error(err))
				_ = r.Kill()
				// Keep draining so the child cannot block on a full pipe
				_, _ = io.Copy(io.Discard, stdout)
			}
			return
		}
		if err := r.dispatcher.Handle(f); err != nil {
			r.logger.Warn("Bad frame from worker", zap.String("kind", string(f.Kind)), zap.Error(err))
		}
	}
}

func (r *Runtime) readStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		r.logger.Info(scanner.Text(), zap.String("source", "stderr"))
	}
	_, _ = io.Copy(io.Discard, stderr)
}
