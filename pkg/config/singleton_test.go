package config

import (
	"os"
	"strings"
	"testing"
)

func TestInitialize(t *testing.T) {
	resetForTesting()
	t.Cleanup(resetForTesting)

	if GetConfig() != nil {
		t.Fatal("GetConfig() before Initialize should be nil")
	}

	path := writeConfig(t, minimalConfig)
	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetConfig() == nil {
		t.Fatal("GetConfig() after Initialize should not be nil")
	}

	// Second call is ignored even with a broken path.
	if err := Initialize("/does/not/exist.yaml"); err != nil {
		t.Errorf("second Initialize() error = %v, want nil", err)
	}
}

func TestReloadConfig(t *testing.T) {
	resetForTesting()
	t.Cleanup(resetForTesting)

	path := writeConfig(t, minimalConfig)
	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	var prevRollout, nextRollout float64
	calls := 0
	OnReload(func(prev, next *Config) {
		calls++
		prevRollout = prev.Rollout.Percentage
		nextRollout = next.Rollout.Percentage
	})

	if err := os.WriteFile(path, []byte(minimalConfig+"\nrollout:\n  percentage: 40\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}
	if err := ReloadConfig(path); err != nil {
		t.Fatalf("ReloadConfig() error = %v", err)
	}

	if calls != 1 {
		t.Fatalf("reload hook called %d times, want 1", calls)
	}
	if prevRollout != 0 || nextRollout != 40 {
		t.Errorf("hook saw %v -> %v, want 0 -> 40", prevRollout, nextRollout)
	}
	if GetConfig().Rollout.Percentage != 40 {
		t.Errorf("GetConfig().Rollout.Percentage = %v, want 40", GetConfig().Rollout.Percentage)
	}
}

func TestReloadConfig_ValidationFailureKeepsPrevious(t *testing.T) {
	resetForTesting()
	t.Cleanup(resetForTesting)

	path := writeConfig(t, minimalConfig)
	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	before := GetConfig()

	called := false
	OnReload(func(_, _ *Config) { called = true })

	if err := os.WriteFile(path, []byte(minimalConfig+"\nrollout:\n  percentage: 400\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}
	err := ReloadConfig(path)
	if err == nil {
		t.Fatal("ReloadConfig() error = nil, want validation error")
	}
	if !strings.Contains(err.Error(), "failed to reload") {
		t.Errorf("unexpected error: %v", err)
	}
	if GetConfig() != before {
		t.Error("failed reload replaced the configuration")
	}
	if called {
		t.Error("reload hook called after failed reload")
	}
}

func TestMustGetConfig(t *testing.T) {
	resetForTesting()
	t.Cleanup(resetForTesting)

	defer func() {
		if recover() == nil {
			t.Error("MustGetConfig() should panic before Initialize")
		}
	}()
	MustGetConfig()
}

func TestSetConfig(t *testing.T) {
	resetForTesting()
	t.Cleanup(resetForTesting)

	cfg := &Config{}
	SetConfig(cfg)
	if MustGetConfig() != cfg {
		t.Error("MustGetConfig() did not return the config passed to SetConfig")
	}
}
