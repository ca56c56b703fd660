// config.go: handler configuration, defaults, and validation
//
// Copyright (c) 2026 ausimian
// SPDX-License-Identifier: MIT

package lokiagent

import (
	"log/slog"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/ausimian/loki-logger-handler/internal/logentry"
)

// StorageBackend selects the Buffer implementation a handler is attached
// with (spec §6 storage option). It is immutable once a handler is
// attached: update_config rejects any attempt to change it.
type StorageBackend string

const (
	StorageDisk   StorageBackend = "disk"
	StorageMemory StorageBackend = "memory"
)

// LabelSource is a source descriptor for one entry in HandlerConfig.Labels
// (spec §6: "map(label -> source descriptor)"). Construct one with
// FromLevel, FromMetadata, or Static; the zero value is not usable.
type LabelSource = logentry.LabelSource

// FromLevel sources a label's value from the entry's severity level.
func FromLevel() LabelSource { return logentry.FromLevel{} }

// FromMetadata sources a label's value from the named event metadata key,
// omitting the label entirely when the key is absent or nil.
func FromMetadata(key string) LabelSource { return logentry.FromMetadata{Key: key} }

// Static sources a label's value from a fixed, config-supplied string.
func Static(value string) LabelSource { return logentry.Static{Value: value} }

// HandlerConfig carries every option in spec §6's configuration table.
// GetConfig returns a copy of this struct; it never carries the internal
// bindings (buffer/dispatcher handles) a handler holds (spec §4.6:
// "internal fields hidden").
type HandlerConfig struct {
	// LokiURL is the base URL; /loki/api/v1/push is appended. Required.
	LokiURL string

	// Storage selects the buffer backend. Immutable after attach.
	Storage StorageBackend

	// Labels extracts Loki stream labels from each event. Defaults to
	// {"level": FromLevel()}.
	Labels map[string]LabelSource

	// StructuredMetadata lists event metadata keys to emit as Loki
	// structured metadata.
	StructuredMetadata []string

	// DataDir is the persistent backend's directory. Immutable after
	// attach. Ignored for the memory backend.
	DataDir string

	// BatchSize is the max entries per push.
	BatchSize int

	// BatchIntervalMs is the dispatcher timer interval, in milliseconds.
	BatchIntervalMs int64

	// MaxBufferSize is the overflow threshold.
	MaxBufferSize int

	// BackoffBaseMs is the backoff base, in milliseconds.
	BackoffBaseMs int64

	// BackoffMaxMs is the backoff cap, in milliseconds.
	BackoffMaxMs int64

	// RequestTimeout bounds every push and flush. Zero selects the
	// recommended default of max(5s, 2 x BatchIntervalMs).
	RequestTimeout time.Duration

	// TenantID, if set, is sent as the X-Scope-OrgID header (teacher
	// feature, not in spec.md but preserved — see lokiclient.Client).
	TenantID string

	// Logger receives dispatcher failures, overflow drops, and lifecycle
	// events. Nil defaults to slog.Default().
	Logger *slog.Logger

	// Meter, if non-nil, receives the observability counters of spec §7.
	// Nil defaults to a no-op meter.
	Meter metric.Meter
}

// DefaultConfig returns the documented defaults of spec §6 for a handler
// that will be attached under id.
func DefaultConfig(id string) HandlerConfig {
	return HandlerConfig{
		Storage:         StorageDisk,
		Labels:          map[string]LabelSource{"level": FromLevel()},
		DataDir:         filepath.Join("priv", "loki_buffer", id),
		BatchSize:       100,
		BatchIntervalMs: 5_000,
		MaxBufferSize:   10_000,
		BackoffBaseMs:   1_000,
		BackoffMaxMs:    60_000,
	}
}

// applyDefaults fills zero-valued optional fields of cfg with the
// defaults of DefaultConfig(id), leaving explicitly-set fields untouched.
func applyDefaults(cfg HandlerConfig, id string) HandlerConfig {
	defaults := DefaultConfig(id)
	if cfg.Storage == "" {
		cfg.Storage = defaults.Storage
	}
	if cfg.Labels == nil {
		cfg.Labels = defaults.Labels
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaults.DataDir
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.BatchIntervalMs == 0 {
		cfg.BatchIntervalMs = defaults.BatchIntervalMs
	}
	if cfg.MaxBufferSize == 0 {
		cfg.MaxBufferSize = defaults.MaxBufferSize
	}
	if cfg.BackoffBaseMs == 0 {
		cfg.BackoffBaseMs = defaults.BackoffBaseMs
	}
	if cfg.BackoffMaxMs == 0 {
		cfg.BackoffMaxMs = defaults.BackoffMaxMs
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = requestTimeout(cfg.BatchIntervalMs)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// requestTimeout implements spec §5's recommended default:
// batch_interval_ms x 2, floored at 5s.
func requestTimeout(batchIntervalMs int64) time.Duration {
	d := time.Duration(batchIntervalMs) * 2 * time.Millisecond
	if d < 5*time.Second {
		return 5 * time.Second
	}
	return d
}

// validateConfig implements the Attach procedure's step 1 (spec §4.6) and
// the validation step shared by set_config/update_config.
func validateConfig(cfg HandlerConfig) error {
	if cfg.LokiURL == "" {
		return missingField("loki_url")
	}
	switch cfg.Storage {
	case StorageDisk, StorageMemory:
	default:
		return invalidField("storage", "must be \"disk\" or \"memory\"")
	}
	if cfg.Storage == StorageDisk && cfg.DataDir == "" {
		return missingField("data_dir")
	}
	if cfg.BatchSize <= 0 {
		return invalidField("batch_size", "must be a positive integer")
	}
	if cfg.BatchIntervalMs <= 0 {
		return invalidField("batch_interval_ms", "must be a positive integer")
	}
	if cfg.MaxBufferSize <= 0 {
		return invalidField("max_buffer_size", "must be a positive integer")
	}
	if cfg.BackoffBaseMs <= 0 {
		return invalidField("backoff_base_ms", "must be a positive integer")
	}
	if cfg.BackoffMaxMs <= 0 {
		return invalidField("backoff_max_ms", "must be a positive integer")
	}
	return nil
}
