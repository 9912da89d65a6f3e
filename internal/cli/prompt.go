package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"
)

// ErrInterrupted is returned when the user aborts a prompt with Ctrl-C.
var ErrInterrupted = errors.New("operation interrupted")

// Prompter asks the user for confirmation and secrets.
type Prompter interface {
	Confirm(label string) (bool, error)
	Secret(label string) (string, error)
}

// TerminalPrompter prompts on the controlling terminal.
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer
}

// NewTerminalPrompter prompts on stdin and stderr.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

// Confirm asks a yes/no question. Anything but an explicit yes is a no.
func (p *TerminalPrompter) Confirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     p.In,
	}
	result, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return false, ErrInterrupted
		}
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return strings.HasPrefix(strings.ToLower(result), "y"), nil
}

// Secret reads a value without echoing it. Piped input is read line by line.
func (p *TerminalPrompter) Secret(label string) (string, error) {
	fd := int(p.In.Fd())
	if !term.IsTerminal(fd) {
		scanner := bufio.NewScanner(p.In)
		if scanner.Scan() {
			return strings.TrimSpace(scanner.Text()), nil
		}
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return "", errors.New("no input received on stdin")
	}

	fmt.Fprintf(p.Out, "%s: ", label)
	value, err := term.ReadPassword(fd)
	fmt.Fprintln(p.Out)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(string(value)), nil
}

// AssumeYes is a Prompter for --yes: it confirms everything and refuses to
// read secrets.
type AssumeYes struct{}

// Confirm always returns true.
func (AssumeYes) Confirm(string) (bool, error) { return true, nil }

// Secret fails, since no input may be requested.
func (AssumeYes) Secret(label string) (string, error) {
	return "", fmt.Errorf("%s must be provided on the command line", strings.ToLower(label))
}
