package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hookbridge/hookbridge/internal/logging"
)

func main() {
	if code := runMain(Execute, os.Stderr); code != 0 {
		os.Exit(code)
	}
}

func runMain(execute func() error, stderr io.Writer) int {
	err := execute()
	if err == nil {
		return 0
	}
	return exitCodeForError(err, stderr)
}

func exitCodeForError(err error, stderr io.Writer) int {
	var ee *exitError
	if errors.As(err, &ee) {
		if !ee.silent {
			cause := err
			if ee.err != nil {
				cause = ee.err
			}
			emitCommandError(cause, "command failed", ee.code, stderr)
		}
		return ee.code
	}

	if errors.Is(err, context.Canceled) {
		emitCommandError(err, "command canceled", 130, stderr)
		return 130
	}

	emitCommandError(err, "command failed", 1, stderr)
	return 1
}

// emitCommandError writes the fatal error the way the failed command logged
// while it ran: structured for server-style commands, a bare stderr line
// otherwise.
func emitCommandError(err error, message string, exitCode int, stderr io.Writer) {
	if !currentCommandExecutionContext().UsesStructuredLog {
		if exitCode == 130 {
			fmt.Fprintln(stderr, "canceled")
			return
		}
		fmt.Fprintln(stderr, err)
		return
	}
	fatalLogger(stderr).Error(message, "exit_code", exitCode, "error", err)
}

// fatalLogger builds a logger from the environment, falling back to the
// default configuration when the logging env itself is broken: the fatal
// path must never fail to report.
func fatalLogger(stderr io.Writer) *slog.Logger {
	cfg, err := logging.LoadConfigFromEnv()
	if err != nil {
		cfg = logging.DefaultConfig()
	}
	return logging.NewLogger(cfg, stderr, currentCommandExecutionContext().CommandPath)
}
