package pubengine

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileEngineOptions mirrors EngineOptions' primitive fields in a shape
// gopkg.in/yaml.v3 can decode, since durations and the Clock/Sender
// collaborators aren't themselves serializable.
type fileEngineOptions struct {
	MaxPublishRequestInQueue  int    `yaml:"maxPublishRequestInQueue"`
	DynamicQueueLimit         bool   `yaml:"dynamicQueueLimit"`
	MinPublishingInterval     string `yaml:"minimumPublishingInterval"`
	MaxPublishingInterval     string `yaml:"maximumPublishingInterval"`
	DefaultPublishingInterval string `yaml:"defaultPublishingInterval"`
}

// LoadEngineOptions reads a YAML configuration file and overlays it onto
// DefaultEngineOptions. Clock, Sender and Diagnostics are never
// configurable this way; callers set those in code after loading.
func LoadEngineOptions(path string) (EngineOptions, error) {
	opts := DefaultEngineOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, err
	}

	var file fileEngineOptions
	if err := yaml.Unmarshal(data, &file); err != nil {
		return opts, err
	}

	if file.MaxPublishRequestInQueue > 0 {
		opts.MaxPublishRequestInQueue = file.MaxPublishRequestInQueue
	}
	opts.DynamicQueueLimit = file.DynamicQueueLimit

	if file.MinPublishingInterval != "" {
		d, err := time.ParseDuration(file.MinPublishingInterval)
		if err != nil {
			return opts, err
		}
		opts.MinPublishingInterval = d
	}
	if file.MaxPublishingInterval != "" {
		d, err := time.ParseDuration(file.MaxPublishingInterval)
		if err != nil {
			return opts, err
		}
		opts.MaxPublishingInterval = d
	}
	if file.DefaultPublishingInterval != "" {
		d, err := time.ParseDuration(file.DefaultPublishingInterval)
		if err != nil {
			return opts, err
		}
		opts.DefaultPublishingInterval = d
	}

	return opts, nil
}
