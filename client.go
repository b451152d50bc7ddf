package tensorchat

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Client submits multi-tensor requests through a Transport. It holds only
// immutable configuration; every submission gets its own Session, so a
// Client is safe for concurrent use.
type Client struct {
	transport Transport
	cfg       Config
	retry     RetryPolicy
	logger    *zap.Logger
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
	closed    atomic.Bool
}

// Option configures a [Client].
type Option func(*Client)

// WithLogger sets the structured logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRetryPolicy replaces [DefaultRetryPolicy].
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithClock sets the time source used for timestamps and throttling.
// Useful for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithSleep sets the function used to wait between attempts. It must
// return early with the context error when ctx is done.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// NewClient creates a [Client] submitting through transport.
func NewClient(transport Transport, cfg Config, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, errors.New("tensorchat: nil transport")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		transport: transport,
		cfg:       cfg,
		retry:     DefaultRetryPolicy(),
		logger:    zap.NewNop(),
		now:       time.Now,
		sleep:     sleepContext,
	}
	for _, o := range opts {
		o(c)
	}
	if err := c.retry.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Config returns the client's configuration.
func (c *Client) Config() Config { return c.cfg }

// Submit streams req and drives cb until the session completes or fails.
//
// Transport failures are retried per the client's RetryPolicy, each retry
// starting a fresh Session; exhausting attempts yields a
// *RetryExhaustedError. Protocol, session and open errors that are not
// transport failures end the call immediately. Tensor failures do not:
// the session completes with mixed outcomes and a nil error.
//
// The returned Session is the last attempt's and is non-nil whenever the
// request passed validation, so partial results stay inspectable after a
// failure. Handler failures from every attempt are returned joined with
// any other error.
func (c *Client) Submit(ctx context.Context, req StreamRequest, cb Callbacks) (*Session, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = req.clone()

	// Handler failures of attempts that were later retried.
	var earlier []error
	for attempt := 1; ; attempt++ {
		session, router, err := c.attempt(ctx, attempt, req, cb)
		if err == nil {
			return session, joinCallbackErrors(nil, earlier, session)
		}
		if ctx.Err() != nil || !Retryable(err) {
			return session, joinCallbackErrors(err, earlier, session)
		}
		if attempt >= c.retry.MaxAttempts {
			exhausted := &RetryExhaustedError{Attempts: attempt, Err: err}
			c.logger.Warn("retries exhausted",
				zap.String("session", session.ID()),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			session.err = exhausted
			router.sessionError(exhausted)
			return session, joinCallbackErrors(exhausted, earlier, session)
		}

		delay := c.retry.Delay(attempt)
		c.logger.Debug("retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.retry.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if c.retry.OnRetry != nil {
			c.retry.OnRetry(attempt, err, delay)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return session, joinCallbackErrors(err, earlier, session)
		}
		earlier = append(earlier, session.CallbackErrors()...)
	}
}

// SubmitSingle runs req without callbacks and returns a snapshot of the
// final session. The snapshot holds partial results when err is non-nil.
func (c *Client) SubmitSingle(ctx context.Context, req StreamRequest) (SessionResult, error) {
	session, err := c.Submit(ctx, req, Callbacks{})
	if session == nil {
		return SessionResult{}, err
	}
	return session.Result(), err
}

// Close rejects further submissions and releases transport resources when
// the transport implements io.Closer. Submissions in flight are not
// interrupted; cancel their contexts for that.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if closer, ok := c.transport.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// attempt runs one stream attempt against a fresh session. The stream is
// closed on every exit path.
func (c *Client) attempt(ctx context.Context, n int, req StreamRequest, cb Callbacks) (*Session, *Router, error) {
	session := newSession(req, c.now)
	router := newRouter(cb, c.cfg.CallbackThrottle, c.now, c.logger, session)
	logger := c.logger.With(zap.String("session", session.ID()), zap.Int("attempt", n))
	logger.Debug("opening stream", zap.String("model", req.Model), zap.Int("tensors", len(req.Tensors)))

	stream, err := c.transport.Open(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			session.fail(ctxErr)
			return session, router, ctxErr
		}
		session.fail(err)
		if !Retryable(err) {
			router.sessionError(err)
		}
		logger.Debug("open failed", zap.Error(err))
		return session, router, err
	}
	defer func() {
		if err := stream.Close(); err != nil {
			logger.Debug("closing stream", zap.Error(err))
		}
	}()

	err = newDemultiplexer(session, router, logger).Run(ctx, stream)
	if err != nil {
		logger.Debug("attempt failed", zap.Error(err))
	}
	return session, router, err
}

// joinCallbackErrors joins err with the handler failures of earlier
// attempts and of s. It returns err unchanged when there are none.
func joinCallbackErrors(err error, earlier []error, s *Session) error {
	errs := slices.Concat(earlier, s.CallbackErrors())
	if len(errs) == 0 {
		return err
	}
	return errors.Join(append([]error{err}, errs...)...)
}
