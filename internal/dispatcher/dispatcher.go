// Package dispatcher implements the timer-driven batcher described in
// spec §4.5: it periodically asks a buffer.Buffer for a batch, pushes it
// through a lokiclient.Client, reconciles buffer state with the outcome,
// and backs off exponentially on failure.
package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/ausimian/loki-logger-handler/internal/buffer"
	"github.com/ausimian/loki-logger-handler/internal/lokiclient"
)

// Params is the mutable parameter snapshot of spec §3's DispatcherState:
// batch size, base interval, and backoff base/max, copied in at start and
// replaced wholesale on Reconfigure.
type Params struct {
	BatchSize       int
	BatchIntervalMs int64
	BackoffBaseMs   int64
	BackoffMaxMs    int64
	RequestTimeout  time.Duration

	// MaxBufferSize is the handler's configured overflow threshold. Flush
	// fetches up to max(MaxBufferSize, minFlushLimit) entries so that a
	// handler configured above the floor never leaves a tail unflushed
	// (spec §4.5: "fetch up to a large limit (>= max_buffer_size)").
	MaxBufferSize int

	// OnBatchPushed, if non-nil, is called with the entry count of every
	// successfully delivered batch (spec §7 "emit a counter on every
	// successful delivery").
	OnBatchPushed func(count int)

	// OnPushFailure, if non-nil, is called once per failed push attempt.
	OnPushFailure func()
}

// State is the read-only diagnostic snapshot exposed by GetState (spec §3
// DispatcherState; the accessor itself is a SPEC_FULL.md addition since
// the testable backoff properties of spec §8 need something to observe).
type State struct {
	ConsecutiveFailures uint32
	NextIntervalMs      int64
}

type flushRequest struct {
	ctx    context.Context
	result chan error
}

type reconfigureRequest struct {
	params Params
	done   chan struct{}
}

type stateRequest struct {
	result chan State
}

// Dispatcher owns a single goroutine driving the Idle -> Awake -> Sending
// -> Idle state machine of spec §4.5. All mutable state (the failure
// counter, the current Params, the timer handle) is confined to that
// goroutine; external calls are serialized against the timer tick through
// request channels rather than a mutex, because the run loop itself needs
// to block on network I/O during Sending without holding one.
type Dispatcher struct {
	buf     buffer.Buffer
	client  *lokiclient.Client
	lokiURL string
	logger  *slog.Logger

	flushCh       chan flushRequest
	reconfigureCh chan reconfigureRequest
	stateCh       chan stateRequest
	stopCh        chan struct{}
	stopped       chan struct{}
}

// New starts a Dispatcher wired to buf, pushing to lokiURL via client,
// with the given initial Params.
func New(buf buffer.Buffer, client *lokiclient.Client, lokiURL string, params Params, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		buf:           buf,
		client:        client,
		lokiURL:       lokiURL,
		logger:        logger,
		flushCh:       make(chan flushRequest),
		reconfigureCh: make(chan reconfigureRequest),
		stateCh:       make(chan stateRequest),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go d.run(params)
	return d
}

func (d *Dispatcher) run(params Params) {
	defer close(d.stopped)

	var consecutiveFailures uint32
	timer := time.NewTimer(time.Duration(params.BatchIntervalMs) * time.Millisecond)
	defer timer.Stop()

	for {
		select {
		case <-d.stopCh:
			return

		case req := <-d.reconfigureCh:
			params = req.params
			close(req.done)

		case req := <-d.stateCh:
			req.result <- State{
				ConsecutiveFailures: consecutiveFailures,
				NextIntervalMs:      NextInterval(consecutiveFailures, params.BatchIntervalMs, params.BackoffBaseMs, params.BackoffMaxMs),
			}

		case req := <-d.flushCh:
			err := d.pushOneBatch(req.ctx, params, flushLimit(params.MaxBufferSize), &consecutiveFailures)
			req.result <- err

		case <-timer.C:
			d.pushOneBatch(context.Background(), params, params.BatchSize, &consecutiveFailures)
			next := NextInterval(consecutiveFailures, params.BatchIntervalMs, params.BackoffBaseMs, params.BackoffMaxMs)
			timer.Reset(time.Duration(next) * time.Millisecond)
		}
	}
}

// minFlushLimit is the floor of spec §4.5's "large limit (e.g. 10 000)"
// for Flush's fetch.
const minFlushLimit = 10000

// flushLimit returns the Flush fetch limit for a handler whose overflow
// threshold is maxBufferSize: never less than minFlushLimit, so Flush
// still drains a handler configured below it in one pass.
func flushLimit(maxBufferSize int) int {
	if maxBufferSize > minFlushLimit {
		return maxBufferSize
	}
	return minFlushLimit
}

// pushOneBatch implements the Awake/Sending steps of spec §4.5: fetch up
// to limit entries, push them, and reconcile the buffer and failure
// counter with the outcome. Returns the push error, if any (nil on an
// empty buffer or successful push).
func (d *Dispatcher) pushOneBatch(ctx context.Context, params Params, limit int, failures *uint32) error {
	count, err := d.buf.Count(ctx)
	if err != nil {
		d.logger.Error("dispatcher: count buffer", "error", err)
		return err
	}
	if count == 0 {
		return nil
	}

	items, err := d.buf.FetchBatch(ctx, limit)
	if err != nil {
		d.logger.Error("dispatcher: fetch batch", "error", err)
		return err
	}
	if len(items) == 0 {
		return nil
	}

	pushCtx, cancel := context.WithTimeout(ctx, params.RequestTimeout)
	defer cancel()

	if err := d.client.Push(pushCtx, d.lokiURL, items); err != nil {
		*failures++
		d.logger.Warn("dispatcher: push failed", "error", err, "consecutive_failures", *failures)
		if params.OnPushFailure != nil {
			params.OnPushFailure()
		}
		return err
	}

	maxKey := items[len(items)-1].Key
	if err := d.buf.DeleteUpTo(ctx, maxKey); err != nil {
		d.logger.Error("dispatcher: delete pushed prefix", "error", err)
		return err
	}
	*failures = 0
	if params.OnBatchPushed != nil {
		params.OnBatchPushed(len(items))
	}
	return nil
}

// Flush blocks until one push attempt resolves (spec §4.5 flush()). It
// does not reset or reschedule the timer.
func (d *Dispatcher) Flush(ctx context.Context) error {
	req := flushRequest{ctx: ctx, result: make(chan error, 1)}
	select {
	case d.flushCh <- req:
	case <-d.stopped:
		return nil
	}
	select {
	case err := <-req.result:
		return err
	case <-d.stopped:
		return nil
	}
}

// Reconfigure replaces the dispatcher's Params wholesale, effective from
// the next timer tick or Flush call.
func (d *Dispatcher) Reconfigure(params Params) {
	req := reconfigureRequest{params: params, done: make(chan struct{})}
	select {
	case d.reconfigureCh <- req:
		<-req.done
	case <-d.stopped:
	}
}

// GetState returns the current diagnostic snapshot.
func (d *Dispatcher) GetState() State {
	req := stateRequest{result: make(chan State, 1)}
	select {
	case d.stateCh <- req:
	case <-d.stopped:
		return State{}
	}
	select {
	case s := <-req.result:
		return s
	case <-d.stopped:
		return State{}
	}
}

// Stop cancels the next scheduled wake-up and waits for the run loop to
// exit. A push already in flight is allowed to complete naturally since
// it runs inline in the run loop (spec §4.5: the push MAY execute
// synchronously on the dispatcher thread); callers that need a bound on
// shutdown latency should cancel the context they handed to Flush, or
// rely on the per-request HTTP timeout already in effect.
func (d *Dispatcher) Stop() {
	select {
	case <-d.stopped:
		return
	default:
	}
	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}
	<-d.stopped
}
