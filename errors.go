// errors.go: configuration, lifecycle, and handler-lookup error types
//
// Copyright (c) 2026 ausimian
// SPDX-License-Identifier: MIT

package lokiagent

import (
	"fmt"
)

// Error code constants for the four error kinds of spec §7: Configuration,
// Lifecycle, Delivery, and Unknown-handler. Delivery errors themselves are
// internal/lokiclient.HTTPError / RequestFailed and surface unwrapped from
// Flush; these codes cover the kinds owned by this package. Each error
// type's Code method returns the matching constant, so a caller can branch
// on the failure kind without a type switch.
const (
	ErrCodeMissingField    = "LOKI_AGENT_MISSING_FIELD"
	ErrCodeInvalidField    = "LOKI_AGENT_INVALID_FIELD"
	ErrCodeImmutableField  = "LOKI_AGENT_IMMUTABLE_FIELD"
	ErrCodeStartFailed     = "LOKI_AGENT_START_FAILED"
	ErrCodeUnknownHandler  = "LOKI_AGENT_UNKNOWN_HANDLER"
	ErrCodeAlreadyAttached = "LOKI_AGENT_ALREADY_ATTACHED"
)

// ConfigError reports a Configuration error (spec §7 kind 1):
// missing_field(name) or invalid_field(name, reason).
type ConfigError struct {
	Field   string
	Reason  string
	Missing bool
}

func (e *ConfigError) Error() string {
	if e.Missing {
		return fmt.Sprintf("loki agent: missing required field %q", e.Field)
	}
	return fmt.Sprintf("loki agent: invalid field %q: %s", e.Field, e.Reason)
}

// Code returns ErrCodeMissingField or ErrCodeInvalidField.
func (e *ConfigError) Code() string {
	if e.Missing {
		return ErrCodeMissingField
	}
	return ErrCodeInvalidField
}

func missingField(name string) *ConfigError {
	return &ConfigError{Field: name, Missing: true}
}

func invalidField(name, reason string) *ConfigError {
	return &ConfigError{Field: name, Reason: reason}
}

// ImmutableFieldError is returned by update_config when a caller attempts
// to change storage or data_dir mid-flight (spec §4.6 reconfigure
// semantics), implemented here as a returned error rather than the
// documented "silently ignore with a warning" alternative.
type ImmutableFieldError struct {
	Field string
}

func (e *ImmutableFieldError) Error() string {
	return fmt.Sprintf("loki agent: field %q is immutable after attach", e.Field)
}

// Code returns ErrCodeImmutableField.
func (e *ImmutableFieldError) Code() string { return ErrCodeImmutableField }

// LifecycleError reports a Lifecycle error (spec §7 kind 2): a component
// failed to start during attach. Partial starts are rolled back before
// this is returned.
type LifecycleError struct {
	Component string
	Cause     error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("loki agent: %s failed to start: %v", e.Component, e.Cause)
}

func (e *LifecycleError) Unwrap() error { return e.Cause }

// Code returns ErrCodeStartFailed.
func (e *LifecycleError) Code() string { return ErrCodeStartFailed }

// UnknownHandlerError is returned from detach/flush/update/get on an id
// that is not registered (spec §7 kind 5).
type UnknownHandlerError struct {
	ID string
}

func (e *UnknownHandlerError) Error() string {
	return fmt.Sprintf("loki agent: no handler attached under id %q", e.ID)
}

// Code returns ErrCodeUnknownHandler.
func (e *UnknownHandlerError) Code() string { return ErrCodeUnknownHandler }

// AlreadyAttachedError is returned by Attach when id already names a live
// handler; spec.md is silent on this case, decided here in DESIGN.md in
// favor of a hard error over a silent replace.
type AlreadyAttachedError struct {
	ID string
}

func (e *AlreadyAttachedError) Error() string {
	return fmt.Sprintf("loki agent: handler already attached under id %q", e.ID)
}

// Code returns ErrCodeAlreadyAttached.
func (e *AlreadyAttachedError) Code() string { return ErrCodeAlreadyAttached }
