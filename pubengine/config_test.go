package pubengine

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadEngineOptionsOverlaysAllThreeIntervalOptions(t *testing.T) {
	path := writeConfigFile(t, `
maxPublishRequestInQueue: 250
dynamicQueueLimit: true
minimumPublishingInterval: 100ms
maximumPublishingInterval: 1h
defaultPublishingInterval: 2s
`)

	opts, err := LoadEngineOptions(path)
	if err != nil {
		t.Fatalf("LoadEngineOptions: %v", err)
	}
	if opts.MaxPublishRequestInQueue != 250 {
		t.Fatalf("expected maxPublishRequestInQueue 250, got %d", opts.MaxPublishRequestInQueue)
	}
	if !opts.DynamicQueueLimit {
		t.Fatalf("expected dynamicQueueLimit true")
	}
	if opts.MinPublishingInterval != 100*time.Millisecond {
		t.Fatalf("expected minimumPublishingInterval 100ms, got %s", opts.MinPublishingInterval)
	}
	if opts.MaxPublishingInterval != time.Hour {
		t.Fatalf("expected maximumPublishingInterval 1h, got %s", opts.MaxPublishingInterval)
	}
	if opts.DefaultPublishingInterval != 2*time.Second {
		t.Fatalf("expected defaultPublishingInterval 2s, got %s", opts.DefaultPublishingInterval)
	}
}

func TestLoadEngineOptionsKeepsDefaultsForOmittedFields(t *testing.T) {
	path := writeConfigFile(t, "maxPublishRequestInQueue: 10\n")

	defaults := DefaultEngineOptions()
	opts, err := LoadEngineOptions(path)
	if err != nil {
		t.Fatalf("LoadEngineOptions: %v", err)
	}
	if opts.MinPublishingInterval != defaults.MinPublishingInterval {
		t.Fatalf("expected default minimumPublishingInterval to survive, got %s", opts.MinPublishingInterval)
	}
	if opts.MaxPublishingInterval != defaults.MaxPublishingInterval {
		t.Fatalf("expected default maximumPublishingInterval to survive, got %s", opts.MaxPublishingInterval)
	}
	if opts.DefaultPublishingInterval != defaults.DefaultPublishingInterval {
		t.Fatalf("expected default defaultPublishingInterval to survive, got %s", opts.DefaultPublishingInterval)
	}
}

func TestLoadEngineOptionsRejectsUnparsableDuration(t *testing.T) {
	path := writeConfigFile(t, "defaultPublishingInterval: not-a-duration\n")

	if _, err := LoadEngineOptions(path); err == nil {
		t.Fatalf("expected an error for an unparsable defaultPublishingInterval")
	}
}
