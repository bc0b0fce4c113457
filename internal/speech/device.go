package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// DefaultCaptureCommand records seconds of 16 kHz mono WAV from the default
// ALSA device to stdout.
func DefaultCaptureCommand(seconds int) []string {
	return []string{"arecord", "-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "wav", "-d", strconv.Itoa(seconds), "-"}
}

// DefaultPlaybackCommand plays WAV from stdin on the default ALSA device.
func DefaultPlaybackCommand() []string {
	return []string{"aplay", "-q", "-"}
}

// CommandSource captures audio from a process writing to stdout.
type CommandSource struct {
	Command []string
}

func (c CommandSource) Open(ctx context.Context) (io.ReadCloser, error) {
	cmd, err := command(ctx, c.Command)
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	p := &process{cmd: cmd}
	cmd.Stderr = &p.stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", cmd.Path, err)
	}
	return &captureStream{ReadCloser: stdout, proc: p}, nil
}

// CommandSink plays audio by writing it to a process's stdin.
type CommandSink struct {
	Command []string
}

func (c CommandSink) Open(ctx context.Context) (io.WriteCloser, error) {
	cmd, err := command(ctx, c.Command)
	if err != nil {
		return nil, err
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	p := &process{cmd: cmd}
	cmd.Stderr = &p.stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", cmd.Path, err)
	}
	return &playbackStream{WriteCloser: stdin, proc: p}, nil
}

func command(ctx context.Context, argv []string) (*exec.Cmd, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("speech: empty audio command")
	}
	return exec.CommandContext(ctx, argv[0], argv[1:]...), nil
}

type process struct {
	cmd    *exec.Cmd
	stderr bytes.Buffer
}

// wait reaps the process. A process killed by a signal is not an error when
// the caller stopped it.
func (p *process) wait(killed bool) error {
	err := p.cmd.Wait()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if killed && errors.As(err, &exitErr) && exitErr.ExitCode() == -1 {
		return nil
	}
	if msg := strings.TrimSpace(p.stderr.String()); msg != "" {
		return fmt.Errorf("%s: %w: %s", p.cmd.Path, err, msg)
	}
	return fmt.Errorf("%s: %w", p.cmd.Path, err)
}

type captureStream struct {
	io.ReadCloser
	proc *process
	once sync.Once
	err  error
}

// Close stops recording if it is still running and reaps the process.
func (s *captureStream) Close() error {
	s.once.Do(func() {
		_ = s.ReadCloser.Close()
		_ = s.proc.cmd.Process.Kill()
		s.err = s.proc.wait(true)
	})
	return s.err
}

type playbackStream struct {
	io.WriteCloser
	proc *process
	once sync.Once
	err  error
}

// Close ends the input and waits for playback to drain.
func (s *playbackStream) Close() error {
	s.once.Do(func() {
		_ = s.WriteCloser.Close()
		s.err = s.proc.wait(false)
	})
	return s.err
}
