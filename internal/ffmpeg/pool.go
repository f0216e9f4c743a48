package ffmpeg

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Pool is a named, intra-process bounded concurrency gate over encoder
// invocations. It guards only the subprocess invocation itself — never
// listing or database calls — and releases its token on every exit path,
// including ctx cancellation while waiting to acquire.
type Pool struct {
	name string
	sem  *semaphore.Weighted
}

// NewPool creates a named pool with the given concurrency limit.
func NewPool(name string, concurrency int64) *Pool {
	return &Pool{name: name, sem: semaphore.NewWeighted(concurrency)}
}

// Run blocks until a slot is available (or ctx is done), then executes cmd.
// Callers apply their own per-kind timeout to ctx before calling Run. The
// returned error distinguishes a timeout (wraps ErrTimeout) from a plain
// non-zero exit; stderr bytes are always returned regardless of outcome.
func (p *Pool) Run(ctx context.Context, cmd *Command) (stderr []byte, err error) {
	if err := p.Acquire(ctx); err != nil {
		return nil, err
	}
	defer p.Release()

	return cmd.Run(ctx)
}

// Acquire blocks until a slot is available (or ctx is done). Callers that
// need to hold one slot across several sequential invocations — an attempt
// ladder, say — should call Acquire once and run each Command directly,
// rather than calling Run per attempt and re-entering the queue each time.
func (p *Pool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("ffmpeg pool %q: acquiring slot: %w", p.name, err)
	}
	return nil
}

// Release returns a slot acquired via Acquire.
func (p *Pool) Release() {
	p.sem.Release(1)
}
