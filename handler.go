// handler.go: per-id handler lifecycle - attach, store, flush, reconfigure, detach
//
// Copyright (c) 2026 ausimian
// SPDX-License-Identifier: MIT

package lokiagent

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ausimian/loki-logger-handler/internal/buffer"
	"github.com/ausimian/loki-logger-handler/internal/dispatcher"
	"github.com/ausimian/loki-logger-handler/internal/lokiclient"
	"github.com/ausimian/loki-logger-handler/internal/logentry"
)

// detachGracePeriod bounds how long Detach waits for an in-flight push
// before abandoning it (spec §4.6 detach procedure: "implementation
// choice; must be documented").
const detachGracePeriod = 5 * time.Second

// handler owns the Buffer + Dispatcher pair of spec §4.6 under one id.
// Storage and DataDir are fixed for the handler's lifetime (spec §4.6:
// changing them mid-flight is not supported), so buf, client, and
// dispatcher never need to be swapped out; only the reconfigurable
// subset of HandlerConfig — labels, structured metadata keys, and the
// dispatcher's batching/backoff Params — changes shape across
// UpdateConfig/SetConfig, and is held behind an atomic.Pointer so Store
// never blocks on a reconfigure in flight.
type handler struct {
	id string

	state atomic.Pointer[HandlerConfig]

	buf        buffer.Buffer
	client     *lokiclient.Client
	dispatcher *dispatcher.Dispatcher
	formatter  logentry.Formatter
	metrics    *handlerMetrics
}

// newHandler implements the Attach procedure (spec §4.6). cfg must
// already be defaulted and validated.
func newHandler(id string, cfg HandlerConfig) (*handler, error) {
	m := newHandlerMetrics(id, cfg.Meter)

	bufCfg := buffer.Config{
		MaxSize:      cfg.MaxBufferSize,
		OnStore:      m.onStore,
		OnDrop:       m.onDrop,
		OnStoreError: func(err error) { cfg.Logger.Error("loki agent: buffer store failed", "id", id, "error", err) },
	}

	var buf buffer.Buffer
	var err error
	switch cfg.Storage {
	case StorageMemory:
		buf = buffer.OpenMemory(bufCfg)
	default:
		buf, err = buffer.OpenDisk(cfg.DataDir, bufCfg)
	}
	if err != nil {
		return nil, &LifecycleError{Component: "buffer", Cause: err}
	}

	client := lokiclient.New(cfg.RequestTimeout)
	client.TenantID = cfg.TenantID

	params := dispatcherParams(cfg, m)
	d := dispatcher.New(buf, client, cfg.LokiURL, params, cfg.Logger)

	h := &handler{
		id:         id,
		buf:        buf,
		client:     client,
		dispatcher: d,
		metrics:    m,
	}
	h.state.Store(&cfg)
	return h, nil
}

func dispatcherParams(cfg HandlerConfig, m *handlerMetrics) dispatcher.Params {
	return dispatcher.Params{
		BatchSize:       cfg.BatchSize,
		BatchIntervalMs: cfg.BatchIntervalMs,
		BackoffBaseMs:   cfg.BackoffBaseMs,
		BackoffMaxMs:    cfg.BackoffMaxMs,
		RequestTimeout:  cfg.RequestTimeout,
		MaxBufferSize:   cfg.MaxBufferSize,
		OnBatchPushed:   m.onBatchPushed,
		OnPushFailure:   m.onPushFailure,
	}
}

// Store formats ev and hands it to the buffer. Fire-and-forget per spec
// §4.3/§7: never blocks the caller on I/O and never returns an error.
func (h *handler) Store(ev logentry.Event) {
	cfg := h.state.Load()
	e := h.formatter.Format(ev, cfg.Labels, cfg.StructuredMetadata)
	h.buf.Store(context.Background(), e)
}

// Flush blocks until one dispatcher push attempt resolves.
func (h *handler) Flush(ctx context.Context) error {
	return h.dispatcher.Flush(ctx)
}

// GetState returns the dispatcher's diagnostic snapshot (supplemented
// feature — see SUPPLEMENTED FEATURES).
func (h *handler) GetState() DispatcherState {
	return h.dispatcher.GetState()
}

// reconfigure validates newCfg, rejects a change to an immutable field,
// and — if accepted — swaps the handler's config snapshot and pushes the
// dispatcher-relevant subset to the running dispatcher.
func (h *handler) reconfigure(newCfg HandlerConfig) error {
	current := h.state.Load()
	if newCfg.Storage != current.Storage {
		return &ImmutableFieldError{Field: "storage"}
	}
	if newCfg.Storage == StorageDisk && newCfg.DataDir != current.DataDir {
		return &ImmutableFieldError{Field: "data_dir"}
	}
	if err := validateConfig(newCfg); err != nil {
		return err
	}

	h.state.Store(&newCfg)
	h.dispatcher.Reconfigure(dispatcherParams(newCfg, h.metrics))
	return nil
}

// Close implements the Detach procedure (spec §4.6): stop the dispatcher
// first, allowing up to detachGracePeriod for an in-flight push, then
// stop the buffer regardless of whether the dispatcher stop completed in
// time.
func (h *handler) Close() error {
	stopped := make(chan struct{})
	go func() {
		h.dispatcher.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(detachGracePeriod):
	}

	return h.buf.Stop()
}
