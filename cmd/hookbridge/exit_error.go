package main

import "strconv"

// exitError carries a process exit code through cobra's error return. silent
// suppresses the fatal-path report for errors already printed by the
// command itself.
type exitError struct {
	code   int
	err    error
	silent bool
}

func (e *exitError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.err != nil:
		return e.err.Error()
	default:
		return "exit " + strconv.Itoa(e.code)
	}
}

func (e *exitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}
