package main

import (
	"bytes"
	"runtime"
	"strings"
	"testing"
)

func TestVersionCommandExists(t *testing.T) {
	if versionCmd == nil {
		t.Fatal("versionCmd is nil")
	}
	if versionCmd.Use != "version" {
		t.Errorf("versionCmd.Use = %q, want %q", versionCmd.Use, "version")
	}
	if versionCmd.Short == "" {
		t.Error("versionCmd.Short should not be empty")
	}
	if versionCmd.Run == nil {
		t.Error("versionCmd.Run should not be nil")
	}
}

func TestVersionOutput(t *testing.T) {
	origVersion, origCommit, origDate := Version, GitCommit, BuildDate
	t.Cleanup(func() { Version, GitCommit, BuildDate = origVersion, origCommit, origDate })

	Version = "0.1.0-test"
	GitCommit = "abc123"
	BuildDate = "2026-10-18"

	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	t.Cleanup(func() { versionCmd.SetOut(nil) })
	versionCmd.Run(versionCmd, nil)

	for _, want := range []string{"Conductor 0.1.0-test", "abc123", "2026-10-18", runtime.Version(), runtime.GOOS + "/" + runtime.GOARCH} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("version output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestRootCommands(t *testing.T) {
	want := map[string]bool{
		"run": false, "validate-config": false, "rollout": false,
		"events": false, "version": false, "completion": false,
	}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestCompletion(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		var buf bytes.Buffer
		completionCmd.SetOut(&buf)
		if err := completionCmd.RunE(completionCmd, []string{shell}); err != nil {
			t.Errorf("completion %s: %v", shell, err)
		}
		if buf.Len() == 0 {
			t.Errorf("completion %s produced no output", shell)
		}
	}
	completionCmd.SetOut(nil)
	if err := completionCmd.RunE(completionCmd, []string{"tcsh"}); err == nil {
		t.Error("expected error for unsupported shell")
	}
}
