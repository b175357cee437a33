// Package uciengine manages UCI engine subprocesses: a line-oriented process
// wrapper plus a registry that shares live engines between consumers by
// reference count.
//
// See: http://wbec-ridderkerk.nl/html/UCIProtocol.html
package uciengine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/seekerror/logw"
	"go.uber.org/atomic"
)

// ErrEngineUnavailable is returned when the engine subprocess has died or
// could not be started.
var ErrEngineUnavailable = errors.New("engine unavailable")

// handshakeTimeout bounds the initial uci/uciok exchange.
const handshakeTimeout = 10 * time.Second

// process is a running UCI engine subprocess. Line channels decouple pipe I/O
// from protocol logic.
type process struct {
	cmd *exec.Cmd

	in   io.WriteCloser
	out  <-chan string
	dead atomic.Bool
}

// startProcess spawns the engine at path and completes the uci handshake.
func startProcess(ctx context.Context, path string) (*process, error) {
	cmd := exec.Command(path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start '%v': %v", ErrEngineUnavailable, path, err)
	}

	p := &process{
		cmd: cmd,
		in:  stdin,
		out: readLines(ctx, stdout),
	}
	go func() {
		_ = cmd.Wait()
		p.dead.Store(true)
	}()

	if err := p.handshake(ctx); err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	logw.Infof(ctx, "Engine started: %v (pid %v)", path, cmd.Process.Pid)
	return p, nil
}

// readLines reads lines from the given reader into a chan. Async.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	ret := make(chan string, 100)
	go func() {
		defer close(ret)

		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			logw.Debugf(ctx, "<< %v", scanner.Text())
			ret <- scanner.Text()
		}
	}()
	return ret
}

func (p *process) handshake(ctx context.Context) error {
	if err := p.send(ctx, "uci"); err != nil {
		return err
	}

	deadline := time.After(handshakeTimeout)
	for {
		select {
		case line, ok := <-p.out:
			if !ok {
				return fmt.Errorf("%w: engine exited during handshake", ErrEngineUnavailable)
			}
			if line == "uciok" {
				return nil
			}
		case <-deadline:
			return fmt.Errorf("%w: no uciok within %v", ErrEngineUnavailable, handshakeTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *process) send(ctx context.Context, line string) error {
	if p.dead.Load() {
		return ErrEngineUnavailable
	}
	logw.Debugf(ctx, ">> %v", line)
	if _, err := io.WriteString(p.in, line+"\n"); err != nil {
		p.dead.Store(true)
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return nil
}

// sync sends isready and waits for readyok, flushing pending output.
func (p *process) sync(ctx context.Context) error {
	if err := p.send(ctx, "isready"); err != nil {
		return err
	}
	for {
		select {
		case line, ok := <-p.out:
			if !ok {
				return ErrEngineUnavailable
			}
			if line == "readyok" {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *process) quit(ctx context.Context) {
	_ = p.send(ctx, "quit")
	_ = p.in.Close()
}

// field returns the token following name in a space-separated UCI info line.
func field(line, name string) (string, bool) {
	tokens := strings.Fields(line)
	for i, t := range tokens {
		if t == name && i+1 < len(tokens) {
			return tokens[i+1], true
		}
	}
	return "", false
}
