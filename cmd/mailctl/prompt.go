package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

var errNoPassword = errors.New("password required: use --password, MAILCTL_PASSWORD or a terminal")

// passwordPrompter hands out the configured password once, then asks on
// the terminal.
type passwordPrompter struct {
	initial string
	in      *os.File
	out     io.Writer
	used    bool
	// readPassword is replaced in tests.
	readPassword func(fd int) ([]byte, error)
}

func newPasswordPrompter(initial string, in *os.File, out io.Writer) *passwordPrompter {
	return &passwordPrompter{initial: initial, in: in, out: out, readPassword: term.ReadPassword}
}

func (p *passwordPrompter) Password(ctx context.Context, feedback error) (string, error) {
	if feedback != nil {
		fmt.Fprintln(p.out, feedback)
	}
	if !p.used && p.initial != "" {
		p.used = true
		return p.initial, nil
	}
	if p.in == nil || !isTerminal(p.in) {
		if feedback != nil {
			return "", feedback
		}
		return "", errNoPassword
	}

	fd := int(p.in.Fd())
	state, err := term.GetState(fd)
	if err != nil {
		return "", err
	}
	fmt.Fprint(p.out, "Password: ")

	type result struct {
		b   []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		b, err := p.readPassword(fd)
		done <- result{b, err}
	}()

	select {
	case <-ctx.Done():
		_ = term.Restore(fd, state)
		fmt.Fprintln(p.out)
		return "", ctx.Err()
	case r := <-done:
		fmt.Fprintln(p.out)
		if r.err != nil {
			return "", r.err
		}
		return string(r.b), nil
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
