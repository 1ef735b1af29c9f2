package driver

import (
	"context"
	"sync"
)

// BlobController implements the ping/pingReply backpressure scheme that
// guards set_blob (§4.D). A single driver has a single output stream, so
// the pending ping id is process-wide: at most one BLOB emission may be
// outstanding at a time.
//
// The source calls out to an externally-supplied wait_ping_reply(tag) that
// blocks the emitting thread with no timeout. This module keeps that
// default behavior (see DESIGN.md Open Question #2) but replaces the
// blocking callout with a channel-keyed future that the dispatcher
// fulfills when it observes the matching <pingReply>, and lets a caller
// optionally bound the wait with a context.
type BlobController struct {
	mu      sync.Mutex
	counter uint64
	pending uint64 // 0 means no ping outstanding
	ready   chan struct{}
}

// NewBlobController returns a controller with no ping outstanding.
func NewBlobController() *BlobController {
	return &BlobController{}
}

// WaitPingReply blocks until the currently outstanding ping (if any) is
// acknowledged, or until ctx is done. A nil ctx (or context.Background())
// reproduces the source's unbounded hang.
func (b *BlobController) WaitPingReply(ctx context.Context) error {
	b.mu.Lock()
	if b.pending == 0 {
		b.mu.Unlock()
		return nil
	}
	wait := b.ready
	b.mu.Unlock()

	if ctx == nil {
		<-wait
		return nil
	}
	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BeginPing allocates the next ping id, marking it pending, and returns it
// for the caller to embed in the outbound pingRequest element.
func (b *BlobController) BeginPing() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.counter++
	b.pending = b.counter
	b.ready = make(chan struct{})
	return b.counter
}

// NotifyPingReply clears the pending id if it matches id, unblocking any
// WaitPingReply callers. A mismatched or stale id is ignored, matching
// the source's at-most-one-in-flight contract.
func (b *BlobController) NotifyPingReply(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id == 0 || b.pending != id {
		return
	}
	b.pending = 0
	close(b.ready)
}

// Pending reports the currently outstanding ping id, or 0 if none.
func (b *BlobController) Pending() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}
