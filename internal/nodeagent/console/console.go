package console

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
	"github.com/autopeer-io/nodeagent/pkg/log"
)

const (
	// queueSize bounds the lines read ahead of the drain worker.
	queueSize = 16
	// maxLine is the longest command accepted; longer lines are skipped.
	maxLine = 4096
)

var errNoSwitch = errors.New("missing \"switch\" field")

// Command is a console line.
type Command struct {
	Switch *bool `json:"switch"`
}

// Console reads line commands and applies them to the digital output.
// Reading and applying are split: Run only queues lines, Drain applies them,
// so suspending the drain worker halts every side effect.
type Console struct {
	in     io.Reader
	output core.Output
	lines  chan string
}

func New(in io.Reader, output core.Output) *Console {
	return &Console{in: in, output: output, lines: make(chan string, queueSize)}
}

// Run reads lines until the input ends or ctx is done. Closable inputs are
// closed on return.
func (c *Console) Run(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- c.scan(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if closer, ok := c.in.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil
	}
}

func (c *Console) scan(ctx context.Context) error {
	r := bufio.NewReaderSize(c.in, maxLine)
	for {
		raw, err := r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			log.Warn("Discarding oversized console line", "limit", maxLine)
			err = skipLine(r)
			raw = nil
		}

		if line := strings.TrimSpace(string(raw)); line != "" {
			select {
			case c.lines <- line:
			case <-ctx.Done():
				return nil
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			log.Info("Console input closed")
			return nil
		default:
			return fmt.Errorf("read console: %w", err)
		}
	}
}

// skipLine consumes input up to and including the next newline.
func skipLine(r *bufio.Reader) error {
	for {
		_, err := r.ReadSlice('\n')
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

// Drain applies every queued line without blocking.
func (c *Console) Drain(_ context.Context) {
	for {
		select {
		case line := <-c.lines:
			if err := c.Apply(line); err != nil {
				log.Warn("Discarding console line", "line", line, "err", err)
			}
		default:
			return
		}
	}
}

// Apply decodes and executes one command line.
func (c *Console) Apply(line string) error {
	var cmd Command
	if err := json.Unmarshal([]byte(line), &cmd); err != nil {
		return fmt.Errorf("decode command: %w", err)
	}
	if cmd.Switch == nil {
		return errNoSwitch
	}
	if err := c.output.SetOutput(*cmd.Switch); err != nil {
		return fmt.Errorf("set output: %w", err)
	}
	log.Info("Output switched by console", "on", *cmd.Switch)
	return nil
}
