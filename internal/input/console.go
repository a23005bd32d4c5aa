package input

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// DefaultPrompt is printed before every console read.
const DefaultPrompt = "You: "

type line struct {
	text string
	err  error
}

// Console reads one utterance per line, typically from stdin.
type Console struct {
	out    io.Writer
	prompt string

	lines chan line
	done  chan struct{}
	once  sync.Once
}

// NewConsole starts reading lines from in. The prompt is written to out
// before each Capture.
func NewConsole(in io.Reader, out io.Writer) *Console {
	c := &Console{
		out:    out,
		prompt: DefaultPrompt,
		lines:  make(chan line),
		done:   make(chan struct{}),
	}
	go c.readLoop(in)
	return c
}

// readLoop runs for the lifetime of the reader because a blocked Read on
// stdin cannot be interrupted.
func (c *Console) readLoop(in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		select {
		case c.lines <- line{text: sc.Text()}:
		case <-c.done:
			return
		}
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	select {
	case c.lines <- line{err: err}:
	case <-c.done:
	}
}

// Capture prints the prompt and returns the next line, trimmed.
func (c *Console) Capture(ctx context.Context) (string, error) {
	select {
	case <-c.done:
		return "", ErrClosed
	default:
	}
	fmt.Fprint(c.out, c.prompt)

	select {
	case l := <-c.lines:
		if l.err != nil {
			if l.err == io.EOF {
				fmt.Fprintln(c.out)
			}
			return "", l.err
		}
		return strings.TrimSpace(l.text), nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", ErrClosed
	}
}

// Close stops delivering lines.
func (c *Console) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
