package process

import (
	"errors"
	"fmt"

	"github.com/kballard/go-shellquote"
)

// ErrUnclosedQuote is returned by ParseCommand for unbalanced quotes.
var ErrUnclosedQuote = errors.New("unclosed quote in command")

// ParseCommand splits a command line into argv using POSIX shell quoting
// rules. Only quoting and escapes are interpreted; no expansion happens.
// An empty or blank command yields nil.
func ParseCommand(command string) ([]string, error) {
	args, err := shellquote.Split(command)
	switch {
	case errors.Is(err, shellquote.UnterminatedSingleQuoteError),
		errors.Is(err, shellquote.UnterminatedDoubleQuoteError):
		return nil, ErrUnclosedQuote
	case err != nil:
		return nil, fmt.Errorf("parse command: %w", err)
	}

	if len(args) == 0 {
		return nil, nil
	}
	return args, nil
}
