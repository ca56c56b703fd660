// registry.go: process-global handler registry
//
// Copyright (c) 2026 ausimian
// SPDX-License-Identifier: MIT

package lokiagent

import (
	"context"
	"sort"
	"sync"
)

// Registry is the process-global handler table of spec §5: "created at
// process start, destroyed at process shutdown; attach/detach are
// serialized against each other per id." Package-level functions below
// delegate to a single process-wide Registry; tests construct their own
// to avoid cross-test interference.
type Registry struct {
	mu       sync.Mutex
	handlers map[string]*handler
	locks    map[string]*sync.Mutex
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]*handler),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (r *Registry) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

// Attach starts a handler under id per spec §4.6's attach procedure.
// Returns an error without side effects if cfg fails validation, and
// rolls back the buffer if the dispatcher fails to start.
func (r *Registry) Attach(id string, cfg HandlerConfig) error {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	_, exists := r.handlers[id]
	r.mu.Unlock()
	if exists {
		return &AlreadyAttachedError{ID: id}
	}

	cfg = applyDefaults(cfg, id)
	if err := validateConfig(cfg); err != nil {
		return err
	}

	h, err := newHandler(id, cfg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.handlers[id] = h
	r.mu.Unlock()
	return nil
}

// Detach stops and removes the handler registered under id (spec §4.6).
func (r *Registry) Detach(id string) error {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	h, ok := r.handlers[id]
	if ok {
		delete(r.handlers, id)
	}
	r.mu.Unlock()
	if !ok {
		return &UnknownHandlerError{ID: id}
	}
	return h.Close()
}

// Flush blocks until the handler under id has attempted one push.
func (r *Registry) Flush(ctx context.Context, id string) error {
	h, err := r.get(id)
	if err != nil {
		return err
	}
	return h.Flush(ctx)
}

// Store hands ev to the handler under id for buffering. Unknown ids are
// silently dropped, matching the fire-and-forget posture of spec §4.3
// ("errors inside store are not propagated"); producers that need to
// know whether id exists should call GetConfig first.
func (r *Registry) Store(id string, ev Event) {
	h, err := r.get(id)
	if err != nil {
		return
	}
	h.Store(ev)
}

// UpdateConfig deep-merges update into the current config of the handler
// registered under id (spec §4.6 "update" semantics): fields left at
// their zero value in update are left unchanged, label entries are
// merged key-by-key rather than replacing the whole map, and a change to
// storage or data_dir is rejected with an *ImmutableFieldError.
func (r *Registry) UpdateConfig(id string, update HandlerConfig) error {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	h, err := r.get(id)
	if err != nil {
		return err
	}

	merged := mergeConfig(*h.state.Load(), update)
	return h.reconfigure(merged)
}

// SetConfig replaces the public fields of the handler registered under
// id wholesale (spec §4.6 "set" semantics), preserving internal bindings
// (buffer/dispatcher handles, which never change after attach). Rejects
// a change to storage or data_dir.
func (r *Registry) SetConfig(id string, full HandlerConfig) error {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	h, err := r.get(id)
	if err != nil {
		return err
	}
	full = applyDefaults(full, id)
	return h.reconfigure(full)
}

// GetConfig returns a copy of the public config of the handler
// registered under id. Internal fields (buffer/dispatcher handles) are
// never part of HandlerConfig, so nothing further needs hiding here.
func (r *Registry) GetConfig(id string) (HandlerConfig, error) {
	h, err := r.get(id)
	if err != nil {
		return HandlerConfig{}, err
	}
	return *h.state.Load(), nil
}

// GetState returns the dispatcher diagnostic snapshot of the handler
// registered under id (supplemented feature — see SUPPLEMENTED FEATURES).
func (r *Registry) GetState(id string) (DispatcherState, error) {
	h, err := r.get(id)
	if err != nil {
		return DispatcherState{}, err
	}
	return h.GetState(), nil
}

// List returns the ids of every currently attached handler, sorted for
// deterministic iteration.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) get(id string) (*handler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[id]
	if !ok {
		return nil, &UnknownHandlerError{ID: id}
	}
	return h, nil
}

// mergeConfig deep-merges update onto base: any field left at update's
// zero value keeps base's value, and update.Labels entries are merged
// key-by-key into base.Labels rather than replacing it wholesale (spec
// §4.6 "deep-merge new keys into current config").
func mergeConfig(base, update HandlerConfig) HandlerConfig {
	merged := base
	if update.LokiURL != "" {
		merged.LokiURL = update.LokiURL
	}
	if update.Storage != "" {
		merged.Storage = update.Storage
	}
	if len(update.Labels) > 0 {
		labels := make(map[string]LabelSource, len(base.Labels)+len(update.Labels))
		for k, v := range base.Labels {
			labels[k] = v
		}
		for k, v := range update.Labels {
			labels[k] = v
		}
		merged.Labels = labels
	}
	if update.StructuredMetadata != nil {
		merged.StructuredMetadata = update.StructuredMetadata
	}
	if update.DataDir != "" {
		merged.DataDir = update.DataDir
	}
	if update.BatchSize != 0 {
		merged.BatchSize = update.BatchSize
	}
	if update.BatchIntervalMs != 0 {
		merged.BatchIntervalMs = update.BatchIntervalMs
	}
	if update.MaxBufferSize != 0 {
		merged.MaxBufferSize = update.MaxBufferSize
	}
	if update.BackoffBaseMs != 0 {
		merged.BackoffBaseMs = update.BackoffBaseMs
	}
	if update.BackoffMaxMs != 0 {
		merged.BackoffMaxMs = update.BackoffMaxMs
	}
	if update.RequestTimeout != 0 {
		merged.RequestTimeout = update.RequestTimeout
	}
	if update.TenantID != "" {
		merged.TenantID = update.TenantID
	}
	if update.Logger != nil {
		merged.Logger = update.Logger
	}
	if update.Meter != nil {
		merged.Meter = update.Meter
	}
	return merged
}

// defaultRegistry is the process-global registry spec §5 describes.
var defaultRegistry = NewRegistry()

// Attach starts a handler under id in the process-global registry.
func Attach(id string, cfg HandlerConfig) error { return defaultRegistry.Attach(id, cfg) }

// Detach stops and removes the handler registered under id.
func Detach(id string) error { return defaultRegistry.Detach(id) }

// Flush blocks until the handler under id has attempted one push.
func Flush(ctx context.Context, id string) error { return defaultRegistry.Flush(ctx, id) }

// Store hands ev to the handler under id for buffering.
func Store(id string, ev Event) { defaultRegistry.Store(id, ev) }

// UpdateConfig deep-merges update into the config of the handler under id.
func UpdateConfig(id string, update HandlerConfig) error {
	return defaultRegistry.UpdateConfig(id, update)
}

// SetConfig replaces the public config of the handler under id wholesale.
func SetConfig(id string, full HandlerConfig) error { return defaultRegistry.SetConfig(id, full) }

// GetConfig returns a copy of the public config of the handler under id.
func GetConfig(id string) (HandlerConfig, error) { return defaultRegistry.GetConfig(id) }

// GetState returns the dispatcher diagnostic snapshot of the handler
// under id.
func GetState(id string) (DispatcherState, error) { return defaultRegistry.GetState(id) }

// List returns the ids of every currently attached handler.
func List() []string { return defaultRegistry.List() }
