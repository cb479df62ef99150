// Package stdio implements the newline-delimited JSON-RPC transport over a
// pair of streams: the process's own stdin/stdout, or the pipes of a child
// process.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent/mcp/transport", "stdio")

const (
	maxMessageSize = 10 * 1024 * 1024
	closeTimeout   = 5 * time.Second
)

// Transport reads messages from r and writes messages to w, one per line.
type Transport struct {
	r io.Reader
	w io.Writer
	// closer is closed on Close, if set
	closer io.Closer
	cmd    *exec.Cmd

	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()

	mu      sync.RWMutex
	writeMu sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
}

var _ transport.Transport = (*Transport)(nil)

// New returns a transport over the given streams.
func New(r io.Reader, w io.Writer) *Transport {
	return &Transport{r: r, w: w, done: make(chan struct{})}
}

// NewStdio returns a transport over os.Stdin and os.Stdout.
func NewStdio() *Transport {
	return New(os.Stdin, os.Stdout)
}

// NewCommand starts command with args and returns a transport over its
// stdin and stdout. The child's stderr is logged. env entries are added to
// the current environment.
func NewCommand(command string, args []string, env []string) (*Transport, error) {
	cmd := exec.Command(command, args...)
	cmd.Env = append(os.Environ(), env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open stdout")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open stderr")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start %s", command)
	}

	logger.KV(xlog.DEBUG, "status", "command_started", "command", command, "pid", cmd.Process.Pid)

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.KV(xlog.DEBUG, "command", command, "stderr", scanner.Text())
		}
	}()

	t := New(stdout, stdin)
	t.closer = stdin
	t.cmd = cmd
	return t, nil
}

// Start begins reading messages in the background.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return errors.New("transport already started")
	}
	t.started = true
	t.mu.Unlock()

	go t.readLoop(ctx)
	return nil
}

// Done is closed when the read loop exits.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

func (t *Transport) readLoop(ctx context.Context) {
	defer close(t.done)
	defer t.handleClose()

	reader := bufio.NewReaderSize(t.r, 64*1024)
	for {
		line, err := readLine(reader)
		if len(line) > 0 {
			t.dispatch(ctx, line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !t.isClosed() {
				t.reportError(errors.Wrap(err, "failed to read message"))
			}
			return
		}
	}
}

func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		line = append(line, chunk...)
		if len(line) > maxMessageSize {
			return nil, errors.Errorf("message exceeds %d bytes", maxMessageSize)
		}
		if err != nil || !isPrefix {
			return line, err
		}
	}
}

func (t *Transport) dispatch(ctx context.Context, line []byte) {
	msg, err := transport.ParseMessage(line)
	if err != nil {
		logger.KV(xlog.WARNING, "status", "invalid_message", "err", err.Error())
		t.reportError(err)
		return
	}

	t.mu.RLock()
	handler := t.messageHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(ctx, msg)
	}
}

// Send writes message as a single line.
func (t *Transport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	if t.isClosed() {
		return errors.New("transport is closed")
	}
	data, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.w.Write(data); err != nil {
		return errors.Wrap(err, "failed to write message")
	}
	return nil
}

// Close closes the write side and, for a command, waits for it to exit.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	var err error
	if t.closer != nil {
		err = t.closer.Close()
	}
	if t.cmd != nil {
		if werr := t.wait(); werr != nil && err == nil {
			var exitErr *exec.ExitError
			if !errors.As(werr, &exitErr) {
				err = werr
			}
		}
	}
	t.handleClose()
	return errors.WithStack(err)
}

// wait gives the command closeTimeout to exit after its stdin is closed,
// then kills it.
func (t *Transport) wait() error {
	waitErr := make(chan error, 1)
	go func() {
		waitErr <- t.cmd.Wait()
	}()
	select {
	case err := <-waitErr:
		return err
	case <-time.After(closeTimeout):
		logger.KV(xlog.WARNING, "status", "command_killed", "pid", t.cmd.Process.Pid)
		_ = t.cmd.Process.Kill()
		return <-waitErr
	}
}

func (t *Transport) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

func (t *Transport) handleClose() {
	t.mu.Lock()
	handler := t.closeHandler
	t.closeHandler = nil
	t.mu.Unlock()
	if handler != nil {
		handler()
	}
}

func (t *Transport) reportError(err error) {
	t.mu.RLock()
	handler := t.errorHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}

// SetCloseHandler implements Transport.SetCloseHandler
func (t *Transport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (t *Transport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements Transport.SetMessageHandler
func (t *Transport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}
