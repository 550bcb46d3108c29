package main

import (
	"os"
	"testing"

	"github.com/masahif/sitediff/internal/cmd"
)

func TestVersionVariables(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty string")
	}
	if BuildTime == "" {
		t.Error("BuildTime should not be empty string")
	}
}

// TestMainLogic runs the sequence main() performs without calling os.Exit
func TestMainLogic(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()

	cmd.SetVersionInfo(Version, BuildTime)

	for _, args := range [][]string{
		{"sitediff", "--help"},
		{"sitediff", "--version"},
		{"sitediff", "crawl", "--help"},
	} {
		os.Args = args
		if err := cmd.Execute(); err != nil {
			t.Errorf("cmd.Execute() with %v should not return error, got: %v", args[1:], err)
		}
	}
}
