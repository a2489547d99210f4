/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package transcode runs ffmpeg to turn arbitrary audio input into raw PCM.
package transcode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// PCM output format shared by every backend.
const (
	SampleRate = 48000
	Channels   = 2
)

// PipeInput tells Start to read from the provided stdin reader.
const PipeInput = "pipe:0"

// Options configures one ffmpeg run.
type Options struct {
	Bin           string
	Filter        string
	Rate          float64
	VolumePercent int
}

// Args builds the ffmpeg argument list for input.
func Args(input string, opts Options) ([]string, error) {
	chain, err := FilterChain(opts.Filter, opts.Rate, opts.VolumePercent)
	if err != nil {
		return nil, err
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if input == PipeInput {
		args = args[:len(args)-1]
	}
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		args = append(args, "-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5")
	}
	args = append(args, "-i", input, "-vn")
	if chain != "" {
		args = append(args, "-af", chain)
	}
	args = append(args,
		"-f", "s16le",
		"-ar", fmt.Sprint(SampleRate),
		"-ac", fmt.Sprint(Channels),
		"pipe:1",
	)
	return args, nil
}

// Process is a running ffmpeg whose stdout carries PCM.
type Process struct {
	cmd     *exec.Cmd
	out     *bufio.Reader
	stdout  io.ReadCloser
	stderr  *tailBuffer
	cleanup []func()

	once     sync.Once
	closeErr error
}

// Start launches ffmpeg reading input (or stdin when input is PipeInput).
// The process is not bound to ctx; Close terminates it.
func Start(input string, stdin io.Reader, opts Options) (*Process, error) {
	bin := opts.Bin
	if bin == "" {
		bin = "ffmpeg"
	}
	args, err := Args(input, opts)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(bin, args...)
	if input == PipeInput {
		cmd.Stdin = stdin
	}
	stderr := newTailBuffer(2048)
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &Process{
		cmd:    cmd,
		out:    bufio.NewReaderSize(stdout, 64*1024),
		stdout: stdout,
		stderr: stderr,
	}, nil
}

// OnClose registers fn to run when the process is closed, e.g. to stop an upstream producer.
func (p *Process) OnClose(fn func()) {
	p.cleanup = append(p.cleanup, fn)
}

// Prime waits until ffmpeg produced its first bytes of audio or ctx ends.
// On failure the process is closed.
func (p *Process) Prime(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		_, err := p.out.Peek(1)
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		_ = p.Close()
		if msg := p.stderr.String(); msg != "" {
			return fmt.Errorf("ffmpeg produced no audio: %s", msg)
		}
		return fmt.Errorf("ffmpeg produced no audio: %w", err)
	case <-ctx.Done():
		_ = p.Close()
		<-done
		return ctx.Err()
	}
}

// Read implements io.Reader over the PCM output.
func (p *Process) Read(b []byte) (int, error) {
	return p.out.Read(b)
}

// Close kills ffmpeg and runs registered cleanups. Safe to call more than once.
func (p *Process) Close() error {
	p.once.Do(func() {
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		_ = p.stdout.Close()
		err := p.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			p.closeErr = err
		}
		for _, fn := range p.cleanup {
			fn()
		}
	})
	return p.closeErr
}

// Stderr returns the tail of ffmpeg's diagnostic output.
func (p *Process) Stderr() string {
	return p.stderr.String()
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
