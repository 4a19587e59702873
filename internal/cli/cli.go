// SPDX-License-Identifier: AGPL-3.0-only
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
)

// PromptPassword reads a password from the terminal without echo. It refuses
// to prompt when stdin is not a terminal so scheduled runs fail fast instead
// of hanging.
func PromptPassword(prompt string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("stdin is not a terminal, set credentials via environment instead")
	}

	fmt.Fprintf(os.Stderr, "%v: ", prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	return string(bytePassword), nil
}

// PromptLine reads a single echoed line, used for usernames and one-time
// verification codes.
func PromptLine(prompt string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("stdin is not a terminal, set credentials via environment instead")
	}

	fmt.Fprintf(os.Stderr, "%v: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}

	return strings.TrimSpace(line), nil
}
