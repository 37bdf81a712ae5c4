// Package sidecar runs a long-lived helper process that answers one JSON line
// per JSON line request on stdin/stdout.
package sidecar

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// ErrClosed is returned by Call after Close.
var ErrClosed = errors.New("sidecar closed")

// Process is safe for concurrent use; calls are serialized.
type Process struct {
	args   []string
	logger *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader
	closed bool
}

func New(command string, logger *slog.Logger) (*Process, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse sidecar command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("sidecar command is empty")
	}
	return &Process{args: args, logger: logger}, nil
}

func (p *Process) start() error {
	cmd := exec.Command(p.args[0], p.args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.args[0], err)
	}
	p.cmd = cmd
	p.stdin = stdin
	p.reader = bufio.NewReaderSize(stdout, 1<<20)
	p.logger.Info("sidecar started", slog.String("command", p.args[0]), slog.Int("pid", cmd.Process.Pid))
	return nil
}

// Call writes req as one line and decodes the next line into resp. The process
// is (re)started lazily; a failed or timed out call kills it so the next call
// starts from a clean stream.
func (p *Process) Call(ctx context.Context, req any, resp any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	payload = append(payload, '\n')

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.cmd == nil {
		if err := p.start(); err != nil {
			return err
		}
	}

	type result struct {
		line []byte
		err  error
	}
	done := make(chan result, 1)
	stdin, reader := p.stdin, p.reader
	go func() {
		if _, err := stdin.Write(payload); err != nil {
			done <- result{err: fmt.Errorf("write request: %w", err)}
			return
		}
		line, err := reader.ReadBytes('\n')
		done <- result{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		p.kill()
		<-done
		return ctx.Err()
	case res := <-done:
		if res.err != nil {
			p.kill()
			return fmt.Errorf("sidecar read: %w", res.err)
		}
		if err := json.Unmarshal(res.line, resp); err != nil {
			return fmt.Errorf("decode sidecar response: %w", err)
		}
		return nil
	}
}

func (p *Process) kill() {
	if p.cmd == nil {
		return
	}
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
	p.cmd = nil
	p.stdin = nil
	p.reader = nil
}

func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.kill()
	return nil
}
