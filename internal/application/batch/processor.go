// Package batch runs one function over many items with bounded concurrency,
// per-item timeouts, retries with exponential backoff and an optional
// circuit breaker.  Results are returned in input order.
package batch

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

var (
	ErrShutdown     = stderrors.New("batch processor is shutting down")
	ErrBackpressure = stderrors.New("backpressure threshold exceeded")
	ErrCircuitOpen  = stderrors.New("circuit breaker is open")
)

// ---------------------------------------------------------------------------
// Item outcome
// ---------------------------------------------------------------------------

type ItemStatus int

const (
	ItemStatusSuccess ItemStatus = iota
	ItemStatusFailed
	ItemStatusTimeout
	ItemStatusCancelled
)

func (s ItemStatus) String() string {
	switch s {
	case ItemStatusSuccess:
		return "SUCCESS"
	case ItemStatusFailed:
		return "FAILED"
	case ItemStatusTimeout:
		return "TIMEOUT"
	case ItemStatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// ProcessFunc handles one item.
type ProcessFunc[T, R any] func(ctx context.Context, item T) (R, error)

type ItemResult[R any] struct {
	Index    int
	Result   R
	Error    error
	Attempts int
	Duration time.Duration
	Status   ItemStatus
}

type Result[R any] struct {
	Items        []*ItemResult[R]
	SuccessCount int
	FailureCount int
	Duration     time.Duration
}

// Errors returns the errors of the failed items in input order.
func (r *Result[R]) Errors() []error {
	var errs []error
	for _, it := range r.Items {
		if it.Error != nil {
			errs = append(errs, it.Error)
		}
	}
	return errs
}

// Processor is safe for concurrent use; several batches may run at once.
type Processor[T, R any] interface {
	Process(ctx context.Context, items []T, fn ProcessFunc[T, R]) (*Result[R], error)

	// Shutdown rejects new batches and waits for running ones.
	Shutdown(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// Retry policy
// ---------------------------------------------------------------------------

type RetryPolicy struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	// Retryable limits retries to errors matching one of these; empty means
	// every error except validation errors is retried.
	Retryable []error
}

func (p *RetryPolicy) shouldRetry(err error) bool {
	if p == nil || err == nil {
		return false
	}
	if len(p.Retryable) == 0 {
		return !errors.IsValidation(err)
	}
	for _, re := range p.Retryable {
		if stderrors.Is(err, re) {
			return true
		}
	}
	return false
}

// backoff returns the delay before retry number attempt (0-based): exponential
// growth capped at MaxBackoff, with ±25% jitter.
func (p *RetryPolicy) backoff(attempt int) time.Duration {
	if p == nil || p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 2
	}
	base := float64(p.InitialBackoff) * math.Pow(mult, float64(attempt))
	if p.MaxBackoff > 0 && base > float64(p.MaxBackoff) {
		base = float64(p.MaxBackoff)
	}
	d := time.Duration(base + base*0.25*(rand.Float64()*2-1))
	if d < 0 {
		return 0
	}
	return d
}

// ---------------------------------------------------------------------------
// Circuit breaker
// ---------------------------------------------------------------------------

const (
	stateClosed int32 = iota
	stateOpen
	stateHalfOpen
)

type circuitBreaker struct {
	state     atomic.Int32
	fails     atomic.Int32
	openedAt  atomic.Int64
	probes    atomic.Int32
	threshold int32
	reset     time.Duration
	logger    logging.Logger
}

func (cb *circuitBreaker) allow() bool {
	if cb == nil {
		return true
	}
	switch cb.state.Load() {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(time.Unix(0, cb.openedAt.Load())) < cb.reset {
			return false
		}
		if cb.state.CompareAndSwap(stateOpen, stateHalfOpen) {
			cb.probes.Store(1)
			cb.logger.Info("circuit breaker half open")
		}
		return cb.probes.Add(-1) >= 0
	default:
		return cb.probes.Add(-1) >= 0
	}
}

func (cb *circuitBreaker) success() {
	if cb == nil {
		return
	}
	cb.fails.Store(0)
	if cb.state.CompareAndSwap(stateHalfOpen, stateClosed) {
		cb.logger.Info("circuit breaker closed")
	}
}

func (cb *circuitBreaker) failure() {
	if cb == nil {
		return
	}
	n := cb.fails.Add(1)
	switch cb.state.Load() {
	case stateClosed:
		if n >= cb.threshold && cb.state.CompareAndSwap(stateClosed, stateOpen) {
			cb.openedAt.Store(time.Now().UnixNano())
			cb.logger.Warn("circuit breaker opened", logging.Int("consecutive_failures", int(n)))
		}
	case stateHalfOpen:
		if cb.state.CompareAndSwap(stateHalfOpen, stateOpen) {
			cb.openedAt.Store(time.Now().UnixNano())
			cb.logger.Warn("circuit breaker reopened after failed probe")
		}
	}
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

type options struct {
	concurrency  int
	itemTimeout  time.Duration
	batchTimeout time.Duration
	retry        *RetryPolicy
	cbThreshold  int
	cbReset      time.Duration
	maxPending   int
	logger       logging.Logger
}

type Option func(*options)

func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func WithItemTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.itemTimeout = d
		}
	}
}

func WithBatchTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.batchTimeout = d
		}
	}
}

// WithRetry retries failed items up to maxRetries times, doubling backoff
// each time up to 16×backoff.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(o *options) {
		if maxRetries > 0 {
			o.retry = &RetryPolicy{MaxRetries: maxRetries, InitialBackoff: backoff, MaxBackoff: 16 * backoff, BackoffMultiplier: 2}
		}
	}
}

func WithRetryPolicy(p *RetryPolicy) Option { return func(o *options) { o.retry = p } }

// WithCircuitBreaker fails items fast after threshold consecutive failures
// until reset has passed.
func WithCircuitBreaker(threshold int, reset time.Duration) Option {
	return func(o *options) {
		if threshold > 0 && reset > 0 {
			o.cbThreshold, o.cbReset = threshold, reset
		}
	}
}

// WithMaxPending rejects batches that would push the number of queued and
// running items over n.
func WithMaxPending(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPending = n
		}
	}
}

func WithLogger(l logging.Logger) Option { return func(o *options) { o.logger = l } }

// ---------------------------------------------------------------------------
// Processor
// ---------------------------------------------------------------------------

type processor[T, R any] struct {
	opts    options
	cb      *circuitBreaker
	logger  logging.Logger
	closed  atomic.Bool
	active  sync.WaitGroup
	pending atomic.Int64
}

func NewProcessor[T, R any](opts ...Option) Processor[T, R] {
	o := options{
		concurrency:  runtime.NumCPU(),
		itemTimeout:  30 * time.Second,
		batchTimeout: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(&o)
	}
	p := &processor[T, R]{opts: o, logger: logging.OrNop(o.logger).Named("batch")}
	if o.cbThreshold > 0 {
		p.cb = &circuitBreaker{threshold: int32(o.cbThreshold), reset: o.cbReset, logger: p.logger}
	}
	return p
}

func (p *processor[T, R]) Process(ctx context.Context, items []T, fn ProcessFunc[T, R]) (*Result[R], error) {
	if fn == nil {
		return nil, errors.InvalidParam("process function must not be nil")
	}
	if p.closed.Load() {
		return nil, ErrShutdown
	}
	n := len(items)
	if n == 0 {
		return &Result[R]{Items: []*ItemResult[R]{}}, nil
	}
	if limit := p.opts.maxPending; limit > 0 && p.pending.Load()+int64(n) > int64(limit) {
		return nil, ErrBackpressure
	}
	p.pending.Add(int64(n))
	defer p.pending.Add(-int64(n))
	p.active.Add(1)
	defer p.active.Done()

	start := time.Now()
	batchCtx, cancel := context.WithTimeout(ctx, p.opts.batchTimeout)
	defer cancel()

	results := make([]*ItemResult[R], n)
	sem := semaphore.NewWeighted(int64(p.opts.concurrency))
	var wg sync.WaitGroup
	for i := range items {
		if err := sem.Acquire(batchCtx, 1); err != nil {
			for j := i; j < n; j++ {
				results[j] = &ItemResult[R]{Index: j, Error: batchCtx.Err(), Status: ctxStatus(batchCtx.Err())}
			}
			break
		}
		wg.Add(1)
		go func(idx int, item T) {
			defer wg.Done()
			defer sem.Release(1)
			results[idx] = p.processOne(batchCtx, idx, item, fn)
		}(i, items[i])
	}
	wg.Wait()

	res := &Result[R]{Items: results, Duration: time.Since(start)}
	for _, r := range results {
		if r.Status == ItemStatusSuccess {
			res.SuccessCount++
		} else {
			res.FailureCount++
		}
	}
	p.logger.Debug("batch processed",
		logging.Int("items", n),
		logging.Int("failed", res.FailureCount),
		logging.Duration("took", res.Duration))
	return res, nil
}

func (p *processor[T, R]) processOne(ctx context.Context, idx int, item T, fn ProcessFunc[T, R]) *ItemResult[R] {
	start := time.Now()
	if !p.cb.allow() {
		return &ItemResult[R]{Index: idx, Error: ErrCircuitOpen, Status: ItemStatusFailed, Duration: time.Since(start)}
	}

	attempts := 1
	if p.opts.retry != nil && p.opts.retry.MaxRetries > 0 {
		attempts += p.opts.retry.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if d := p.opts.retry.backoff(attempt - 1); d > 0 {
				select {
				case <-ctx.Done():
					return &ItemResult[R]{Index: idx, Error: ctx.Err(), Attempts: attempt, Status: ctxStatus(ctx.Err()), Duration: time.Since(start)}
				case <-time.After(d):
				}
			}
		}

		itemCtx, cancel := context.WithTimeout(ctx, p.opts.itemTimeout)
		out, err := fn(itemCtx, item)
		cancel()
		if err == nil {
			p.cb.success()
			return &ItemResult[R]{Index: idx, Result: out, Attempts: attempt + 1, Status: ItemStatusSuccess, Duration: time.Since(start)}
		}

		lastErr = err
		p.cb.failure()
		if ctx.Err() != nil || !p.opts.retry.shouldRetry(err) {
			attempts = attempt + 1
			break
		}
	}

	return &ItemResult[R]{Index: idx, Error: lastErr, Attempts: attempts, Status: errStatus(ctx, lastErr), Duration: time.Since(start)}
}

func (p *processor[T, R]) Shutdown(ctx context.Context) error {
	p.closed.Store(true)
	done := make(chan struct{})
	go func() {
		p.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "batch shutdown timed out")
	}
}

func ctxStatus(err error) ItemStatus {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return ItemStatusTimeout
	}
	return ItemStatusCancelled
}

func errStatus(batchCtx context.Context, err error) ItemStatus {
	switch {
	case err == nil:
		return ItemStatusSuccess
	case stderrors.Is(err, context.DeadlineExceeded):
		return ItemStatusTimeout
	case stderrors.Is(err, context.Canceled):
		return ItemStatusCancelled
	case batchCtx.Err() != nil:
		return ctxStatus(batchCtx.Err())
	default:
		return ItemStatusFailed
	}
}
