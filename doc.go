// Copyright (c) 2026 ausimian
// SPDX-License-Identifier: MIT

// Package lokiagent implements a buffered log-shipping agent for Grafana
// Loki.
//
// Producers call Store against a named handler attached with Attach.
// Entries are formatted, assigned a monotonic key, and queued in a
// Buffer (disk-backed by default, memory-backed optionally); a
// Dispatcher goroutine periodically batches the queue and pushes it to
// a Loki push API endpoint. A successful push deletes the pushed
// prefix; a failed one leaves the buffer untouched and backs off
// exponentially before the next attempt.
//
// # Architecture
//
// lokiagent sits between a host logging facade and Loki:
//
//	host facade → Event → Formatter → Buffer → Dispatcher → Loki push API
//
// This module does not implement the host facade itself, nor the HTTP
// client library internals beyond a thin Loki-specific client; it owns
// only the buffering, batching, retry, and delivery-accounting layer.
//
// # Basic usage
//
//	package main
//
//	import (
//	    "log"
//
//	    lokiagent "github.com/ausimian/loki-logger-handler"
//	)
//
//	func main() {
//	    cfg := lokiagent.DefaultConfig("my-service")
//	    cfg.LokiURL = "http://localhost:3100"
//	    cfg.Storage = lokiagent.StorageMemory
//
//	    if err := lokiagent.Attach("my-service", cfg); err != nil {
//	        log.Fatal(err)
//	    }
//	    defer lokiagent.Detach("my-service")
//
//	    lokiagent.Store("my-service", lokiagent.Event{
//	        Level: lokiagent.Info,
//	        Msg:   lokiagent.TextMessage("hello from lokiagent"),
//	    })
//	}
//
// # Configuration
//
// HandlerConfig covers every option documented for this agent: the Loki
// endpoint, storage backend, label and structured-metadata extraction,
// batch size and interval, overflow threshold, and backoff bounds.
// DefaultConfig supplies the documented defaults; Attach validates and
// fills in any field left at its zero value.
//
// # Error handling
//
// Configuration errors (*ConfigError, *ImmutableFieldError) are returned
// synchronously from Attach/UpdateConfig/SetConfig with no side effects.
// Lifecycle errors (*LifecycleError) are returned from Attach if a
// component fails to start; any component already started is torn down
// first. Delivery errors (*lokiclient.HTTPError, *lokiclient.RequestFailed)
// surface from Flush and are otherwise only logged and counted — a
// struggling Loki endpoint never takes a handler down. Operations on an
// unregistered id return *UnknownHandlerError.
//
// # Concurrency
//
// Store is safe for concurrent use from any number of producer
// goroutines and never blocks on network or file I/O. Attach, Detach,
// UpdateConfig, and SetConfig are serialized against each other per id;
// Flush and GetConfig take no per-id lock.
package lokiagent
