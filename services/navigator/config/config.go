// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the navigator's service configuration and the
// scoring/safety policy.
//
// # Description
//
// ServiceConfig covers deployment concerns: where to listen, where the
// catalog sheet lives, message limits, and model settings. It loads from
// an optional YAML file, then NAVIGATOR_* environment variables override
// individual fields. PolicyConfig covers ranking behavior and is loaded
// separately from an embedded YAML document.
//
// # Thread Safety
//
// Loaded configurations are immutable; the policy singleton guards
// replacement with a mutex.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Fallback mode names for CatalogConfig.Fallback.
const (
	// FallbackNone returns no resources when nothing scores positively.
	FallbackNone = "none"

	// FallbackFirstN returns the first N catalog records instead.
	FallbackFirstN = "first_n"
)

// Provider constants for supported rewriter/classifier backends.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// ValidProviders contains the set of valid provider names.
var ValidProviders = []string{ProviderAnthropic, ProviderOpenAI}

// Default model identifiers. The classifier runs on every message, so it
// defaults to the cheaper model.
const (
	DefaultRewriterModel   = "claude-sonnet-4-20250514"
	DefaultClassifierModel = "claude-haiku-4-5-20251001"
)

// =============================================================================
// Duration
// =============================================================================

// Duration is a time.Duration that unmarshals from YAML strings like "2m"
// or "30s", or from plain integer seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("invalid duration node: %w", err)
	}
	parsed, err := parseDuration(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler so written configs stay readable.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// AsDuration returns the underlying time.Duration.
func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

func parseDuration(raw string) (Duration, error) {
	if raw == "" {
		return 0, nil
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		return Duration(parsed), nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return Duration(time.Duration(secs) * time.Second), nil
	}
	return 0, fmt.Errorf("invalid duration %q (want a Go duration like \"2m\" or integer seconds)", raw)
}

// =============================================================================
// Service Configuration Types
// =============================================================================

// ServiceConfig is the navigator's deployment configuration.
//
// Description:
//
//	Loaded once at startup from defaults, an optional YAML file, and
//	NAVIGATOR_* environment overrides, in that order. Validated before use
//	so a misconfigured service fails at boot rather than mid-request.
//
// Thread Safety: Immutable after LoadServiceConfig returns.
type ServiceConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Limits   LimitsConfig   `yaml:"limits"`
	LLM      LLMConfig      `yaml:"llm"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	// Port is the TCP port the HTTP server binds.
	Port int `yaml:"port" validate:"min=1,max=65535"`

	// CORSOrigins lists allowed cross-origin callers. Empty allows any
	// origin, which is only appropriate for local development.
	CORSOrigins []string `yaml:"cors_origins"`

	// RatePerMinute caps requests per client IP over a sliding one-minute
	// window. Zero disables the limiter.
	RatePerMinute int `yaml:"rate_per_minute" validate:"min=0"`
}

// CatalogConfig controls where the resource sheet lives and how it is cached.
type CatalogConfig struct {
	// URL is the published CSV endpoint of the resource sheet.
	URL string `yaml:"url" validate:"required,url"`

	// TTL is how long a loaded catalog snapshot is served before refetching.
	TTL Duration `yaml:"ttl"`

	// Timeout bounds a single catalog fetch.
	Timeout Duration `yaml:"timeout"`

	// Fallback selects what to do when no record scores positively:
	// "none" returns nothing, "first_n" returns the first FallbackN records.
	Fallback string `yaml:"fallback" validate:"oneof=none first_n"`

	// FallbackN is the record count for the first_n fallback.
	FallbackN int `yaml:"fallback_n" validate:"min=0"`
}

// LimitsConfig caps inbound message sizes before any processing.
type LimitsConfig struct {
	// MaxMessageChars truncates the user message beyond this length.
	MaxMessageChars int `yaml:"max_message_chars" validate:"min=1"`

	// MaxHistoryTurns keeps only the most recent turns of history.
	MaxHistoryTurns int `yaml:"max_history_turns" validate:"min=0"`
}

// LLMConfig selects and bounds the language-model collaborators.
type LLMConfig struct {
	// Provider is the backend for both collaborators: "anthropic" or "openai".
	Provider string `yaml:"provider" validate:"required,oneof=anthropic openai"`

	// Model is the rewriter model identifier.
	Model string `yaml:"model" validate:"required"`

	// ClassifierModel is the intent-classifier model identifier. The
	// classifier runs on every message, so this defaults to a cheap model.
	ClassifierModel string `yaml:"classifier_model" validate:"required"`

	// Timeout bounds a single model call.
	Timeout Duration `yaml:"timeout"`

	// RatePerMinute caps outbound model calls. Zero disables the limiter.
	RatePerMinute int `yaml:"rate_per_minute" validate:"min=0"`
}

// SnapshotConfig controls the optional on-disk catalog snapshot.
type SnapshotConfig struct {
	// Dir is the Badger directory for catalog snapshots. Empty disables
	// persistence entirely; the service then runs purely in memory.
	Dir string `yaml:"dir"`
}

// =============================================================================
// Defaults
// =============================================================================

const (
	// DefaultPort is the default HTTP listen port.
	DefaultPort = 8090

	// DefaultCatalogTTL is how long catalog snapshots stay fresh.
	DefaultCatalogTTL = 2 * time.Minute

	// DefaultCatalogTimeout bounds a single catalog fetch.
	DefaultCatalogTimeout = 30 * time.Second

	// DefaultFallbackN is the record count for the first_n fallback.
	DefaultFallbackN = 3

	// DefaultMaxMessageChars caps inbound message length.
	DefaultMaxMessageChars = 2000

	// DefaultMaxHistoryTurns caps retained conversation turns.
	DefaultMaxHistoryTurns = 12

	// DefaultLLMTimeout bounds a single model call.
	DefaultLLMTimeout = 60 * time.Second

	// DefaultLLMRatePerMinute caps outbound model calls.
	DefaultLLMRatePerMinute = 60

	// DefaultServerRatePerMinute caps inbound requests per client IP.
	DefaultServerRatePerMinute = 120
)

// DefaultServiceConfig returns a ServiceConfig with every default applied.
//
// Description:
//
//	The catalog URL has no sensible default and stays empty; validation
//	rejects the config until a file or NAVIGATOR_CATALOG_URL provides it.
//
// Outputs:
//
//	*ServiceConfig - Defaults for every field except Catalog.URL.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Server: ServerConfig{
			Port:          DefaultPort,
			RatePerMinute: DefaultServerRatePerMinute,
		},
		Catalog: CatalogConfig{
			TTL:       Duration(DefaultCatalogTTL),
			Timeout:   Duration(DefaultCatalogTimeout),
			Fallback:  FallbackNone,
			FallbackN: DefaultFallbackN,
		},
		Limits: LimitsConfig{
			MaxMessageChars: DefaultMaxMessageChars,
			MaxHistoryTurns: DefaultMaxHistoryTurns,
		},
		LLM: LLMConfig{
			Provider:        ProviderAnthropic,
			Model:           DefaultRewriterModel,
			ClassifierModel: DefaultClassifierModel,
			Timeout:         Duration(DefaultLLMTimeout),
			RatePerMinute:   DefaultLLMRatePerMinute,
		},
	}
}

// =============================================================================
// Loading
// =============================================================================

// LoadServiceConfig builds the service configuration.
//
// Description:
//
//	Starts from defaults, merges the YAML file at path when path is
//	non-empty, applies NAVIGATOR_* environment overrides, and validates
//	the result.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//	path - Optional YAML file path. Empty skips the file step.
//
// Outputs:
//
//	*ServiceConfig - The validated configuration.
//	error - Non-nil if reading, parsing, overriding, or validation fails.
//
// Thread Safety: Safe for concurrent use; the result is immutable.
func LoadServiceConfig(ctx context.Context, path string) (*ServiceConfig, error) {
	if ctx == nil {
		return nil, fmt.Errorf("LoadServiceConfig: ctx must not be nil")
	}

	_, span := configTracer.Start(ctx, "config.LoadServiceConfig")
	defer span.End()

	cfg := DefaultServiceConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("LoadServiceConfig: reading %s: %w", path, err)
		}
		if len(data) > MaxYAMLFileSize {
			return nil, fmt.Errorf("LoadServiceConfig: %s exceeds maximum size (%d > %d)", path, len(data), MaxYAMLFileSize)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("LoadServiceConfig: parsing %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("LoadServiceConfig: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("LoadServiceConfig: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides replaces individual fields from NAVIGATOR_* variables.
//
// Recognized variables:
//
//	NAVIGATOR_PORT, NAVIGATOR_CATALOG_URL, NAVIGATOR_CATALOG_TTL,
//	NAVIGATOR_CATALOG_TIMEOUT, NAVIGATOR_CATALOG_FALLBACK,
//	NAVIGATOR_CATALOG_FALLBACK_N, NAVIGATOR_MAX_MESSAGE_CHARS,
//	NAVIGATOR_MAX_HISTORY_TURNS, NAVIGATOR_LLM_PROVIDER,
//	NAVIGATOR_LLM_MODEL, NAVIGATOR_LLM_CLASSIFIER_MODEL,
//	NAVIGATOR_LLM_TIMEOUT, NAVIGATOR_LLM_RATE_PER_MINUTE,
//	NAVIGATOR_SNAPSHOT_DIR
func (c *ServiceConfig) applyEnvOverrides() error {
	if err := overrideInt("NAVIGATOR_PORT", &c.Server.Port); err != nil {
		return err
	}
	if err := overrideInt("NAVIGATOR_SERVER_RATE_PER_MINUTE", &c.Server.RatePerMinute); err != nil {
		return err
	}
	overrideString("NAVIGATOR_CATALOG_URL", &c.Catalog.URL)
	if err := overrideDuration("NAVIGATOR_CATALOG_TTL", &c.Catalog.TTL); err != nil {
		return err
	}
	if err := overrideDuration("NAVIGATOR_CATALOG_TIMEOUT", &c.Catalog.Timeout); err != nil {
		return err
	}
	overrideString("NAVIGATOR_CATALOG_FALLBACK", &c.Catalog.Fallback)
	if err := overrideInt("NAVIGATOR_CATALOG_FALLBACK_N", &c.Catalog.FallbackN); err != nil {
		return err
	}
	if err := overrideInt("NAVIGATOR_MAX_MESSAGE_CHARS", &c.Limits.MaxMessageChars); err != nil {
		return err
	}
	if err := overrideInt("NAVIGATOR_MAX_HISTORY_TURNS", &c.Limits.MaxHistoryTurns); err != nil {
		return err
	}
	overrideString("NAVIGATOR_LLM_PROVIDER", &c.LLM.Provider)
	overrideString("NAVIGATOR_LLM_MODEL", &c.LLM.Model)
	overrideString("NAVIGATOR_LLM_CLASSIFIER_MODEL", &c.LLM.ClassifierModel)
	if err := overrideDuration("NAVIGATOR_LLM_TIMEOUT", &c.LLM.Timeout); err != nil {
		return err
	}
	if err := overrideInt("NAVIGATOR_LLM_RATE_PER_MINUTE", &c.LLM.RatePerMinute); err != nil {
		return err
	}
	overrideString("NAVIGATOR_SNAPSHOT_DIR", &c.Snapshot.Dir)
	return nil
}

func overrideString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func overrideDuration(key string, dst *Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := parseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks the configuration for consistency.
//
// Description:
//
//	Runs struct-tag validation, then the cross-field checks the tags
//	cannot express (fallback_n required by first_n mode, positive
//	durations).
//
// Outputs:
//
//	error - Non-nil with a descriptive message on the first failure.
func (c *ServiceConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if c.Catalog.Fallback == FallbackFirstN && c.Catalog.FallbackN <= 0 {
		return fmt.Errorf("config validation: catalog.fallback_n must be positive when catalog.fallback is %q", FallbackFirstN)
	}
	if c.Catalog.TTL.AsDuration() <= 0 {
		return fmt.Errorf("config validation: catalog.ttl must be positive")
	}
	if c.Catalog.Timeout.AsDuration() <= 0 {
		return fmt.Errorf("config validation: catalog.timeout must be positive")
	}
	if c.LLM.Timeout.AsDuration() <= 0 {
		return fmt.Errorf("config validation: llm.timeout must be positive")
	}

	return nil
}
