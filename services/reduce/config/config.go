// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the reducer configuration.
//
// A config file is optional. Keys it leaves out keep their DefaultConfig
// values, and command line flags are applied on top before Validate runs.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianReduce/services/reduce/passes"
)

// ErrInvalidConfig wraps every load and validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// DefaultFileName is the config file looked up when none is given.
const DefaultFileName = "reduce.yaml"

// =============================================================================
// Shared Validator Instance
// =============================================================================

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("pass", validatePass)
}

// validatePass accepts registered pass names.
func validatePass(fl validator.FieldLevel) bool {
	_, err := passes.ByName(fl.Field().String())
	return err == nil
}

// =============================================================================
// Types
// =============================================================================

// Config is the full reducer configuration.
type Config struct {
	// Oracle: the interestingness test
	Oracle OracleConfig `yaml:"oracle"`

	// Passes run in this order every round
	Passes []string `yaml:"passes" validate:"required,min=1,dive,pass"`

	// MaxRounds bounds the pass pipeline repetitions
	MaxRounds int `yaml:"max_rounds" validate:"gte=1,lte=1000"`

	// DependencyPolicy: "snapshot" counts uses once, "live" drops uses in deleted text
	DependencyPolicy string `yaml:"dependency_policy" validate:"oneof=snapshot live"`

	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint"`

	// Backup writes <file>.orig before the first edit
	Backup bool `yaml:"backup"`

	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type OracleConfig struct {
	Command     string        `yaml:"command" validate:"required"`     // run with /bin/sh -c
	WorkDir     string        `yaml:"workdir,omitempty"`               // default: the file's directory
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`         // e.g. 60s
	Retries     int           `yaml:"retries" validate:"gte=0,lte=10"` // invocation failures only
	ErrorPolicy string        `yaml:"error_policy" validate:"oneof=reject abort"`
}

type DiagnosticsConfig struct {
	Compiler string        `yaml:"compiler" validate:"required"` // e.g. cc, clang, gcc
	Flags    []string      `yaml:"flags,omitempty"`              // e.g. ["-I", "include"]
	Timeout  time.Duration `yaml:"timeout" validate:"gt=0"`
}

type CheckpointConfig struct {
	// Kind is "none", "dir" or "badger"
	Kind string `yaml:"kind" validate:"oneof=none dir badger"`
	Path string `yaml:"path,omitempty" validate:"required_unless=Kind none"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint,omitempty" validate:"omitempty,hostname_port"`
	PrometheusPort int    `yaml:"prometheus_port" validate:"gte=0,lte=65535"`
}

// DefaultConfig returns the configuration used when no file is given. The
// oracle command has no default and must be supplied.
func DefaultConfig() Config {
	return Config{
		Oracle: OracleConfig{
			Timeout:     60 * time.Second,
			Retries:     2,
			ErrorPolicy: "reject",
		},
		Passes:           append([]string(nil), passes.DefaultOrder...),
		MaxRounds:        8,
		DependencyPolicy: "snapshot",
		Diagnostics: DiagnosticsConfig{
			Compiler: "cc",
			Timeout:  60 * time.Second,
		},
		Checkpoint: CheckpointConfig{Kind: "none"},
		Backup:     true,
		Logging:    LoggingConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "none",
			PrometheusPort: 9464,
		},
	}
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// =============================================================================
// Loading
// =============================================================================

// Load reads path over the defaults. An empty path returns the defaults
// unless DefaultFileName exists in the working directory. Unknown keys are
// rejected. The result is not validated; flags may still fill gaps.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		if _, err := os.Stat(DefaultFileName); err != nil {
			return cfg, nil
		}
		path = DefaultFileName
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: failed to read %s: %v", ErrInvalidConfig, path, err)
	}
	if err := Decode(bytes.NewReader(data), &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// Decode unmarshals YAML from r into cfg, keeping fields r does not set.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// WriteDefault writes the default configuration to path, creating its
// directory. An existing file is left alone.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
