package interpreter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/isdmx/execbox/engine"
)

// Name is the backend name used in routes and metrics
const Name = "interpreter"

// Defaults
const (
	DefaultTimeout        = 15 * time.Second
	DefaultWorkers        = 8
	DefaultStatementLimit = 50_000
	DefaultCallStackLimit = 1024
)

// Backend evaluates code in-process on a bounded worker pool
type Backend struct {
	logger         *zap.Logger
	engines        map[engine.Language]Engine
	pool           *semaphore.Weighted
	timeout        time.Duration
	statementLimit uint64
	callStackLimit int
	outputLimit    int
	grants         []string
}

// Option defines a functional option for Backend
type Option func(*Backend)

// WithEngine registers an engine, replacing any engine for the same language
func WithEngine(e Engine) Option {
	return func(b *Backend) {
		b.engines[e.Language()] = e
	}
}

// WithTimeout sets the wall-clock budget for queueing plus evaluation
func WithTimeout(timeout time.Duration) Option {
	return func(b *Backend) {
		if timeout > 0 {
			b.timeout = timeout
		}
	}
}

// WithWorkers sets the number of concurrent evaluations
func WithWorkers(workers int) Option {
	return func(b *Backend) {
		if workers > 0 {
			b.pool = semaphore.NewWeighted(int64(workers))
		}
	}
}

// WithStatementLimit sets the statement ceiling; zero disables it
func WithStatementLimit(limit uint64) Option {
	return func(b *Backend) {
		b.statementLimit = limit
	}
}

// WithCallStackLimit sets the call depth ceiling; zero disables it
func WithCallStackLimit(depth int) Option {
	return func(b *Backend) {
		b.callStackLimit = depth
	}
}

// WithOutputLimit sets the capture ceiling per stream in bytes
func WithOutputLimit(limit int) Option {
	return func(b *Backend) {
		if limit > 0 {
			b.outputLimit = limit
		}
	}
}

// WithGrants sets the capability modules made available to programs
func WithGrants(grants []string) Option {
	return func(b *Backend) {
		b.grants = append([]string(nil), grants...)
	}
}

// NewBackend creates an interpreter backend serving JavaScript and Python by default
func NewBackend(logger *zap.Logger, opts ...Option) *Backend {
	b := &Backend{
		logger:         logger,
		engines:        make(map[engine.Language]Engine),
		pool:           semaphore.NewWeighted(DefaultWorkers),
		timeout:        DefaultTimeout,
		statementLimit: DefaultStatementLimit,
		callStackLimit: DefaultCallStackLimit,
		outputLimit:    engine.DefaultOutputLimit,
	}

	for _, e := range []Engine{NewJavaScriptEngine(), NewPythonEngine()} {
		b.engines[e.Language()] = e
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Name returns the backend name
func (b *Backend) Name() string {
	return Name
}

// Supports reports whether an engine is registered for the language
func (b *Backend) Supports(lang engine.Language) bool {
	_, ok := b.engines[lang]
	return ok
}

// Execute evaluates the request, answering no later than the timeout
//
//nolint:gocritic // engine.Backend signature
func (b *Backend) Execute(ctx context.Context, req engine.Request) engine.Result {
	lang, _ := engine.ParseLanguage(req.Language)
	eng, ok := b.engines[lang]
	if !ok {
		return engine.Failedf(engine.KindUnsupportedLanguage, "no interpreter engine for %s", req.Language)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.pool.Acquire(ctx, 1); err != nil {
		b.logger.Warn("no interpreter worker available before deadline",
			zap.String("language", lang.String()),
			zap.Duration("timeout", b.timeout))
		return b.timeoutResult(ctx)
	}

	done := make(chan engine.Result, 1)
	go func() {
		defer b.pool.Release(1)
		done <- b.evaluate(ctx, eng, req)
	}()

	select {
	case result := <-done:
		return result
	case <-ctx.Done():
		// the evaluation has been interrupted and releases its worker when it unwinds
		b.logger.Warn("interpreter evaluation timed out",
			zap.String("language", lang.String()),
			zap.Duration("timeout", b.timeout))
		return b.timeoutResult(ctx)
	}
}

//nolint:gocritic // engine.Request passed by value like everywhere else
func (b *Backend) evaluate(ctx context.Context, eng Engine, req engine.Request) (result engine.Result) {
	lang := eng.Language()

	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("interpreter evaluation panicked",
				zap.String("language", lang.String()),
				zap.Any("panic", p))
			result = engine.Failedf(engine.KindInternalFailure, "interpreter fault: %v", p)
		}
	}()

	stdout := engine.NewCappedBuffer(b.outputLimit)
	stderr := engine.NewCappedBuffer(b.outputLimit)

	ictx, err := eng.NewContext(ContextOptions{
		Stdout: stdout,
		Stderr: stderr,
		Args:   req.Args,
		Grants: b.grants,
	})
	if err != nil {
		b.logger.Error("failed to create interpreter context",
			zap.String("language", lang.String()),
			zap.Error(err))
		return engine.Failedf(engine.KindInternalFailure, "failed to create interpreter context: %v", err)
	}
	defer func() {
		if closeErr := ictx.Close(); closeErr != nil {
			b.logger.Warn("failed to close interpreter context",
				zap.String("language", lang.String()),
				zap.Error(closeErr))
		}
	}()

	if err := b.applyLimits(lang, ictx); err != nil {
		return engine.Failedf(engine.KindInternalFailure, "failed to apply interpreter limits: %v", err)
	}

	value, err := ictx.Eval(ctx, req.Code)
	if ctx.Err() != nil {
		return b.timeoutResult(ctx)
	}
	if err != nil {
		message := err.Error()
		if captured := stderr.String(); captured != "" {
			message = captured + "\n" + message
		}
		return engine.Failed(engine.KindRuntimeFailure, message)
	}

	return buildResult(lang, stdout.String(), stderr.String(), value)
}

// applyLimits sets resource ceilings, skipping the ones the engine cannot enforce
func (b *Backend) applyLimits(lang engine.Language, ictx Context) error {
	if b.statementLimit > 0 {
		if err := ictx.SetStatementLimit(b.statementLimit); err != nil {
			if !errors.Is(err, ErrLimitUnsupported) {
				return fmt.Errorf("statement limit: %w", err)
			}
			b.logger.Debug("statement limit not supported, skipping", zap.String("language", lang.String()))
		}
	}

	if b.callStackLimit > 0 {
		if err := ictx.SetCallStackLimit(b.callStackLimit); err != nil {
			if !errors.Is(err, ErrLimitUnsupported) {
				return fmt.Errorf("call stack limit: %w", err)
			}
			b.logger.Debug("call stack limit not supported, skipping", zap.String("language", lang.String()))
		}
	}

	return nil
}

func (b *Backend) timeoutResult(ctx context.Context) engine.Result {
	if errors.Is(ctx.Err(), context.Canceled) {
		return engine.Failed(engine.KindTimeout, "execution cancelled")
	}
	return engine.Failedf(engine.KindTimeout, "execution timed out after %s", b.timeout)
}
