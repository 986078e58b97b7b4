package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// promptPassphrase reads a passphrase from the terminal without echo. When
// stdin is not a terminal a single line is read instead. confirm asks twice.
func promptPassphrase(prompt string, confirm bool) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	pass, err := readHidden(fd, prompt)
	if err != nil {
		return "", err
	}
	if !confirm {
		return pass, nil
	}
	again, err := readHidden(fd, "Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if pass != again {
		return "", fmt.Errorf("passphrases do not match")
	}
	return pass, nil
}

func readHidden(fd int, prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}
