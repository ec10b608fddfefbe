package main

import "testing"

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	t.Parallel()

	if cmd, _, err := rootCmd.Find([]string{"serve"}); err != nil || cmd == nil || cmd.Name() != "serve" {
		t.Fatalf("serve command not registered: cmd=%v err=%v", cmd, err)
	}
	if cmd, _, err := rootCmd.Find([]string{"migrate"}); err != nil || cmd == nil || cmd.Name() != "migrate" {
		t.Fatalf("migrate command not registered: cmd=%v err=%v", cmd, err)
	}
}

func TestCommandUsesStructuredLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want bool
	}{
		{name: "serve", args: []string{"serve"}, want: true},
		{name: "migrate", args: []string{"migrate"}, want: true},
		{name: "root", args: nil, want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cmd, _, err := rootCmd.Find(tc.args)
			if err != nil {
				t.Fatalf("Find(%v) error = %v", tc.args, err)
			}
			if cmd == nil {
				t.Fatalf("Find(%v) returned nil command", tc.args)
			}

			if got := commandUsesStructuredLogging(cmd); got != tc.want {
				t.Fatalf("commandUsesStructuredLogging(%q) = %v, want %v", cmd.CommandPath(), got, tc.want)
			}
		})
	}
}
