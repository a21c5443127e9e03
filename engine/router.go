package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/isdmx/execbox/engine"

var (
	// ErrLanguageRegistered is returned when a language already has a backend
	ErrLanguageRegistered = errors.New("language already registered")
	// ErrNilBackend is returned when registering a nil backend
	ErrNilBackend = errors.New("backend must not be nil")
	// ErrUnknownLanguage is returned when registering a language outside the supported set
	ErrUnknownLanguage = errors.New("unknown language")
)

// Observer receives execution lifecycle events
type Observer interface {
	ExecutionStarted(backend, language string)
	ExecutionFinished(backend, language, status string, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) ExecutionStarted(string, string)                         {}
func (nopObserver) ExecutionFinished(string, string, string, time.Duration) {}

// Registration describes which backend serves a language
type Registration struct {
	Language Language `json:"language"`
	Backend  string   `json:"backend"`
}

// Router validates requests and dispatches them to the registered backend
type Router struct {
	logger   *zap.Logger
	observer Observer
	tracer   trace.Tracer

	mu     sync.RWMutex
	routes map[Language]Backend
}

// RouterOption defines a functional option for Router
type RouterOption func(*Router)

// WithObserver sets the Observer notified around every dispatch
func WithObserver(observer Observer) RouterOption {
	return func(r *Router) {
		if observer != nil {
			r.observer = observer
		}
	}
}

// WithTracer sets the tracer used for route spans
func WithTracer(tracer trace.Tracer) RouterOption {
	return func(r *Router) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// NewRouter creates an empty Router
func NewRouter(logger *zap.Logger, opts ...RouterOption) *Router {
	r := &Router{
		logger:   logger,
		observer: nopObserver{},
		tracer:   otel.Tracer(tracerName),
		routes:   make(map[Language]Backend),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register maps a language to a backend
func (r *Router) Register(lang Language, backend Backend) error {
	if backend == nil {
		return fmt.Errorf("register %s: %w", lang, ErrNilBackend)
	}
	if !supportedLanguages[lang] {
		return fmt.Errorf("register %s: %w", lang, ErrUnknownLanguage)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.routes[lang]; ok {
		return fmt.Errorf("register %s on %s: already served by %s: %w", lang, backend.Name(), existing.Name(), ErrLanguageRegistered)
	}
	r.routes[lang] = backend

	r.logger.Debug("language registered",
		zap.String("language", lang.String()),
		zap.String("backend", backend.Name()))

	return nil
}

// Languages returns the sorted set of routable languages
func (r *Router) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	langs := make([]string, 0, len(r.routes))
	for lang := range r.routes {
		langs = append(langs, lang.String())
	}
	sort.Strings(langs)
	return langs
}

// Registrations returns every language with the name of its backend, sorted by language
func (r *Router) Registrations() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := make([]Registration, 0, len(r.routes))
	for lang, backend := range r.routes {
		regs = append(regs, Registration{Language: lang, Backend: backend.Name()})
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].Language < regs[j].Language })
	return regs
}

func (r *Router) lookup(name string) (Language, Backend, bool) {
	lang, ok := ParseLanguage(name)
	if !ok {
		return lang, nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	backend, ok := r.routes[lang]
	return lang, backend, ok
}

// Route executes a request and always returns a normalized Result
func (r *Router) Route(ctx context.Context, req Request) Result {
	start := time.Now()

	lang, backend, ok := r.lookup(req.Language)
	if !ok {
		r.logger.Warn("unsupported language", zap.String("language", req.Language))
		return normalize(Failedf(KindUnsupportedLanguage, "unsupported language: %s", req.Language), time.Since(start))
	}
	req.Language = lang.String()
	name := backend.Name()

	ctx, span := r.tracer.Start(ctx, "engine.route", trace.WithAttributes(
		attribute.String("execbox.language", req.Language),
		attribute.String("execbox.backend", name),
	))
	defer span.End()

	r.logger.Debug("dispatching execution",
		zap.String("language", req.Language),
		zap.String("backend", name),
		zap.Int("code_len", len(req.Code)))

	r.observer.ExecutionStarted(name, req.Language)
	result := normalize(r.dispatch(ctx, backend, req), time.Since(start))
	elapsed := time.Since(start)
	r.observer.ExecutionFinished(name, req.Language, result.Status(), elapsed)

	span.SetAttributes(attribute.String("execbox.status", result.Status()))
	if !result.Success {
		span.SetStatus(codes.Error, string(result.Kind))
	}

	fields := []zap.Field{
		zap.String("language", req.Language),
		zap.String("backend", name),
		zap.String("status", result.Status()),
		zap.Int64("execution_time_ms", result.ExecutionTimeMs),
	}
	if result.Success {
		r.logger.Info("execution completed", fields...)
	} else {
		r.logger.Info("execution failed", append(fields, zap.String("kind", string(result.Kind)))...)
	}

	return result
}

func (r *Router) dispatch(ctx context.Context, backend Backend, req Request) (result Result) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("backend panicked",
				zap.String("backend", backend.Name()),
				zap.String("language", req.Language),
				zap.Any("panic", p))
			result = Failedf(KindInternalFailure, "internal error: %v", p)
		}
	}()

	return backend.Execute(ctx, req)
}

// normalize enforces the Result contract
func normalize(result Result, elapsed time.Duration) Result {
	if result.Success {
		result.Error = ""
		result.Kind = ""
	} else {
		result.Output = ""
		if result.Kind == "" {
			result.Kind = KindInternalFailure
		}
		if result.Error == "" {
			result.Error = "execution failed"
		}
	}

	result.ExecutionTimeMs = max(elapsed.Milliseconds(), 0)
	return result
}
