// config_test.go: tests for handler configuration defaults and validation
//
// Copyright (c) 2026 ausimian
// SPDX-License-Identifier: MIT

package lokiagent

import "testing"

func TestDefaultConfigMatchesDocumentedDefaults(t *testing.T) {
	cfg := DefaultConfig("svc")
	if cfg.Storage != StorageDisk {
		t.Errorf("expected disk storage default, got %q", cfg.Storage)
	}
	if cfg.BatchSize != 100 {
		t.Errorf("expected batch size 100, got %d", cfg.BatchSize)
	}
	if cfg.BatchIntervalMs != 5_000 {
		t.Errorf("expected batch interval 5000ms, got %d", cfg.BatchIntervalMs)
	}
	if cfg.MaxBufferSize != 10_000 {
		t.Errorf("expected max buffer size 10000, got %d", cfg.MaxBufferSize)
	}
	if cfg.BackoffBaseMs != 1_000 {
		t.Errorf("expected backoff base 1000ms, got %d", cfg.BackoffBaseMs)
	}
	if cfg.BackoffMaxMs != 60_000 {
		t.Errorf("expected backoff max 60000ms, got %d", cfg.BackoffMaxMs)
	}
	if _, ok := cfg.Labels["level"]; !ok {
		t.Error("expected default level label source")
	}
}

func TestValidateConfigRejectsMissingLokiURL(t *testing.T) {
	cfg := applyDefaults(HandlerConfig{}, "svc")
	err := validateConfig(cfg)
	var cerr *ConfigError
	if !asConfigError(err, &cerr) || !cerr.Missing || cerr.Field != "loki_url" {
		t.Fatalf("expected missing loki_url error, got %v", err)
	}
	if cerr.Code() != ErrCodeMissingField {
		t.Errorf("expected code %s, got %s", ErrCodeMissingField, cerr.Code())
	}
}

func TestValidateConfigRejectsInvalidStorage(t *testing.T) {
	cfg := applyDefaults(HandlerConfig{LokiURL: "http://x", Storage: "tape"}, "svc")
	err := validateConfig(cfg)
	var cerr *ConfigError
	if !asConfigError(err, &cerr) || cerr.Field != "storage" {
		t.Fatalf("expected invalid storage error, got %v", err)
	}
	if cerr.Code() != ErrCodeInvalidField {
		t.Errorf("expected code %s, got %s", ErrCodeInvalidField, cerr.Code())
	}
}

func TestValidateConfigRejectsNonPositiveBatchSize(t *testing.T) {
	cfg := applyDefaults(HandlerConfig{LokiURL: "http://x"}, "svc")
	cfg.BatchSize = -1
	err := validateConfig(cfg)
	var cerr *ConfigError
	if !asConfigError(err, &cerr) || cerr.Field != "batch_size" {
		t.Fatalf("expected invalid batch_size error, got %v", err)
	}
}

func TestApplyDefaultsLeavesExplicitFieldsUntouched(t *testing.T) {
	cfg := applyDefaults(HandlerConfig{LokiURL: "http://x", BatchSize: 7}, "svc")
	if cfg.BatchSize != 7 {
		t.Errorf("expected explicit batch size preserved, got %d", cfg.BatchSize)
	}
	if cfg.BatchIntervalMs != 5_000 {
		t.Errorf("expected default batch interval, got %d", cfg.BatchIntervalMs)
	}
}

func TestRequestTimeoutFloorsAtFiveSeconds(t *testing.T) {
	if got := requestTimeout(1_000); got.Seconds() != 5 {
		t.Errorf("expected floor of 5s, got %v", got)
	}
	if got := requestTimeout(10_000); got.Seconds() != 20 {
		t.Errorf("expected 2x interval, got %v", got)
	}
}

func asConfigError(err error, target **ConfigError) bool {
	if e, ok := err.(*ConfigError); ok {
		*target = e
		return true
	}
	return false
}
