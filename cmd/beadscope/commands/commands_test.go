package commands

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute version: %v", err)
	}
	if !strings.Contains(out.String(), "beadscope") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestReplayRejectsMissingArg(t *testing.T) {
	rootCmd.SetArgs([]string{"replay"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("replay without a capture path should fail")
	}
}
