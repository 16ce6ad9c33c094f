package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/tailored-agentic-units/storyloop/vote"
)

// console is a coordinator.Transport where every participant shares one
// terminal. Votes are typed as option numbers when the ballot closes.
// Input prompts are only written when prompt is set.
type console struct {
	mu     sync.Mutex
	in     *bufio.Scanner
	out    io.Writer
	prompt bool
}

func newConsole(in io.Reader, out io.Writer, prompt bool) *console {
	return &console{in: bufio.NewScanner(in), out: out, prompt: prompt}
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func (c *console) Broadcast(ctx context.Context, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "\n%s\n", msg)
	return err
}

func (c *console) Collect(ctx context.Context, participant string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLine(ctx, participant+"> ")
}

func (c *console) OpenVote(ctx context.Context, question string, options []string) (vote.Ballot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.out, "\n%s\n", question); err != nil {
		return nil, err
	}
	for i, opt := range options {
		fmt.Fprintf(c.out, "  %d) %s\n", i+1, opt)
	}
	return &consoleBallot{console: c, options: len(options)}, nil
}

// readLine must be called with mu held.
func (c *console) readLine(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.prompt {
		if _, err := io.WriteString(c.out, prompt); err != nil {
			return "", err
		}
	}
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return c.in.Text(), nil
}

type consoleBallot struct {
	console *console
	options int
}

func (b *consoleBallot) Close(ctx context.Context) ([]int, error) {
	b.console.mu.Lock()
	defer b.console.mu.Unlock()

	line, err := b.console.readLine(ctx, "votes (option numbers separated by spaces)> ")
	if err != nil {
		return nil, err
	}
	return tally(line, b.options), nil
}

// tally counts one vote per valid option number in line. Anything that is
// not a number in [1, n] is ignored.
func tally(line string, n int) []int {
	counts := make([]int, n)
	for _, field := range strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	}) {
		choice, err := strconv.Atoi(field)
		if err != nil || choice < 1 || choice > n {
			continue
		}
		counts[choice-1]++
	}
	return counts
}
