package commands

import (
	"bufio"
	"bytes"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	// ErrNoPassword is returned for an empty password.
	ErrNoPassword = errors.New("no password given")
	// ErrPasswordMismatch is returned when the confirmation differs.
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// readPassword returns env when set. Otherwise it prompts on prompt and reads
// from in without echo when in is a terminal, or one line per answer when it is not.
func readPassword(in io.Reader, prompt io.Writer, env string, confirm bool) ([]byte, error) {
	if env != "" {
		return []byte(env), nil
	}

	read := lineReader(in)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // file descriptors fit in int
		read = func() ([]byte, error) {
			defer fmt.Fprintln(prompt)

			return term.ReadPassword(int(f.Fd())) //nolint:gosec // file descriptors fit in int
		}
	}

	fmt.Fprint(prompt, color.GreenString("Password: "))

	password, err := read()
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}

	if len(password) == 0 {
		return nil, fmt.Errorf("%w: set PASSCODE_PASSWORD or enter one when prompted", ErrNoPassword)
	}

	if !confirm {
		return password, nil
	}

	fmt.Fprint(prompt, color.GreenString("Verify: "))

	again, err := read()
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}

	if subtle.ConstantTimeCompare(password, again) != 1 {
		return nil, ErrPasswordMismatch
	}

	return password, nil
}

func lineReader(in io.Reader) func() ([]byte, error) {
	scanner := bufio.NewScanner(in)

	return func() ([]byte, error) {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, err
			}

			return nil, io.EOF
		}

		return bytes.Clone(bytes.TrimRight(scanner.Bytes(), "\r")), nil
	}
}
