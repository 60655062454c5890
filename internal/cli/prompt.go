package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompt prints label and reads one line.
func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.err, label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptSecret reads a line without echo when stdin is a terminal.
func (a *app) promptSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if a.in.Buffered() > 0 || !term.IsTerminal(fd) {
		return a.prompt(label)
	}
	fmt.Fprint(a.err, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(a.err)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

// orPrompt returns v, prompting for it when empty.
func (a *app) orPrompt(v, label string, secret bool) (string, error) {
	if v != "" {
		return v, nil
	}
	if secret {
		return a.promptSecret(label)
	}
	return a.prompt(label)
}

// confirm asks a yes/no question; anything but y or yes is no.
func (a *app) confirm(question string) (bool, error) {
	ans, err := a.prompt(question + " [y/N]: ")
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(ans)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// terminalWidth returns the stdout width, or 0 when it is not a terminal.
func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		return w
	}
	return 0
}
