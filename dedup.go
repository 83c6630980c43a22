package tangguh

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// pendingOp is one in-flight logical request shared between callers. All
// waiters observe the identical outcome, and only after the single underlying
// dispatch settles.
type pendingOp struct {
	done chan struct{}
	resp *Response
	err  error

	// waiters and cancel are guarded by the registry mutex. When the last
	// waiter detaches before settle, the flight itself is cancelled.
	waiters int
	cancel  context.CancelFunc
	settled bool
}

// dedupRegistry tracks pending operations by fingerprint.
type dedupRegistry struct {
	mu  sync.Mutex
	ops map[string]*pendingOp
}

func newDedupRegistry() *dedupRegistry {
	return &dedupRegistry{
		ops: make(map[string]*pendingOp),
	}
}

// joinOrStart attaches to the pending operation for key, creating it when
// absent. started reports ownership: the owner must run the flight with
// flightCtx and settle exactly once.
func (r *dedupRegistry) joinOrStart(key string) (op *pendingOp, flightCtx context.Context, started bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.ops[key]; ok {
		existing.waiters++
		return existing, nil, false
	}

	ctx, cancel := context.WithCancel(context.Background())
	op = &pendingOp{
		done:    make(chan struct{}),
		waiters: 1,
		cancel:  cancel,
	}
	r.ops[key] = op
	return op, ctx, true
}

// settle records the outcome, releases all waiters and removes the entry
// immediately, so a subsequent identical request starts a fresh flight.
func (r *dedupRegistry) settle(key string, op *pendingOp, resp *Response, err error) {
	r.mu.Lock()
	if op.settled {
		r.mu.Unlock()
		return
	}
	op.settled = true
	op.resp = resp
	op.err = err
	if r.ops[key] == op {
		delete(r.ops, key)
	}
	r.mu.Unlock()

	close(op.done)
	op.cancel()
}

// detach removes one waiter before settle. When the last waiter leaves, the
// shared flight is cancelled.
func (r *dedupRegistry) detach(key string, op *pendingOp) {
	r.mu.Lock()
	if op.settled {
		r.mu.Unlock()
		return
	}
	op.waiters--
	last := op.waiters <= 0
	if last && r.ops[key] == op {
		delete(r.ops, key)
	}
	r.mu.Unlock()

	if last {
		op.cancel()
	}
}

// wait blocks until the operation settles or the caller's context ends.
// Cancellation is per caller: detaching does not disturb other waiters.
func (r *dedupRegistry) wait(ctx context.Context, key string, op *pendingOp) (*Response, error) {
	select {
	case <-op.done:
		return op.resp.clone(), op.err
	case <-ctx.Done():
		r.detach(key, op)
		// The flight may have settled while detaching; prefer its outcome.
		select {
		case <-op.done:
			return op.resp.clone(), op.err
		default:
		}
		return nil, ctx.Err()
	}
}

// run executes fn exactly once per fingerprint across concurrent callers.
// The flight runs on a context detached from any single caller, so one
// caller's cancellation cannot fail the others.
func (r *dedupRegistry) run(ctx context.Context, key string, fn func(context.Context) (*Response, error)) (*Response, error, bool) {
	op, flightCtx, started := r.joinOrStart(key)
	if started {
		go func() {
			defer func() {
				// A panicking flight must still release its waiters.
				if p := recover(); p != nil {
					r.settle(key, op, nil, &RequestError{
						Kind:      KindNetwork,
						Message:   "request dispatch panicked",
						Cause:     fmt.Errorf("%v", p),
						Timestamp: time.Now(),
					})
				}
			}()
			resp, err := fn(flightCtx)
			r.settle(key, op, resp, err)
		}()
	}
	resp, err := r.wait(ctx, key, op)
	return resp, err, !started
}

// size reports the number of pending operations, for metrics.
func (r *dedupRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}
