package main

import "github.com/spf13/cobra"

// structuredLogAnnotation marks commands whose fatal-path errors go through
// the structured logger instead of plain stderr lines.
const structuredLogAnnotation = "structured-log"

// commandExecutionContext describes the command currently running; the
// fatal error path reads it after cobra has returned.
type commandExecutionContext struct {
	CommandPath       string
	UsesStructuredLog bool
}

var executionContext commandExecutionContext

func setCommandExecutionContext(ctx commandExecutionContext) {
	executionContext = ctx
}

func resetCommandExecutionContext() {
	executionContext = commandExecutionContext{}
}

func currentCommandExecutionContext() commandExecutionContext {
	return executionContext
}

func commandUsesStructuredLogging(cmd *cobra.Command) bool {
	if cmd == nil {
		return false
	}
	return cmd.Annotations[structuredLogAnnotation] == "true"
}
