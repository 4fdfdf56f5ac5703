package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Reads answers from user; passwords are read without echo when input is a terminal
type prompter struct {
	reader *bufio.Reader
	out    io.Writer

	// Terminal file descriptor, -1 if input is not a terminal
	fd int
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &prompter{reader: bufio.NewReader(in), out: out, fd: fd}
}

func (p *prompter) Line(prompt string) (string, error) {
	if _, err := fmt.Fprint(p.out, prompt+": "); err != nil {
		return "", err
	}

	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *prompter) Password(prompt string) (string, error) {
	if p.fd < 0 {
		return p.Line(prompt)
	}

	if _, err := fmt.Fprint(p.out, prompt+": "); err != nil {
		return "", err
	}
	pw, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// Return value if set, ask otherwise
func (p *prompter) LineOr(value string, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	return p.Line(prompt)
}
