package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// SpyBackend implements Backend and records every call
type SpyBackend struct {
	name   string
	delay  time.Duration
	result Result
	panic  any
	calls  atomic.Int32

	mu       sync.Mutex
	requests []Request
}

func (s *SpyBackend) Name() string {
	return s.name
}

func (s *SpyBackend) Execute(ctx context.Context, req Request) Result {
	s.calls.Add(1)
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}
	if s.panic != nil {
		panic(s.panic)
	}
	return s.result
}

// RecordingObserver implements Observer for testing
type RecordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []string
}

func (o *RecordingObserver) ExecutionStarted(backend, language string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, backend+"/"+language)
}

func (o *RecordingObserver) ExecutionFinished(backend, language, status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, backend+"/"+language+"/"+status)
}

func TestRouterRegister(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("Duplicate", func(t *testing.T) {
		router := NewRouter(logger)
		require.NoError(t, router.Register(LanguageJava, &SpyBackend{name: "native"}))

		err := router.Register(LanguageJava, &SpyBackend{name: "remote"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrLanguageRegistered))
	})

	t.Run("NilBackend", func(t *testing.T) {
		router := NewRouter(logger)
		err := router.Register(LanguageJava, nil)
		assert.ErrorIs(t, err, ErrNilBackend)
	})

	t.Run("UnknownLanguage", func(t *testing.T) {
		router := NewRouter(logger)
		err := router.Register(Language("cobol"), &SpyBackend{name: "remote"})
		assert.ErrorIs(t, err, ErrUnknownLanguage)
	})

	t.Run("LanguagesSorted", func(t *testing.T) {
		router := NewRouter(logger)
		require.NoError(t, router.Register(LanguagePython, &SpyBackend{name: "interpreter"}))
		require.NoError(t, router.Register(LanguageC, &SpyBackend{name: "remote"}))
		require.NoError(t, router.Register(LanguageJava, &SpyBackend{name: "native"}))

		assert.Equal(t, []string{"c", "java", "python"}, router.Languages())
		assert.Equal(t, []Registration{
			{Language: LanguageC, Backend: "remote"},
			{Language: LanguageJava, Backend: "native"},
			{Language: LanguagePython, Backend: "interpreter"},
		}, router.Registrations())
	})
}

func TestRouterRoute(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	t.Run("UnsupportedLanguageSkipsBackends", func(t *testing.T) {
		spy := &SpyBackend{name: "remote", result: Succeeded("never")}
		router := NewRouter(logger)
		require.NoError(t, router.Register(LanguageC, spy))

		for _, lang := range []string{"cobol", "", "brainfuck"} {
			result := router.Route(ctx, Request{Language: lang, Code: "x"})
			assert.False(t, result.Success)
			assert.Equal(t, KindUnsupportedLanguage, result.Kind)
			assert.Empty(t, result.Output)
			assert.GreaterOrEqual(t, result.ExecutionTimeMs, int64(0))
		}
		assert.Equal(t, int32(0), spy.calls.Load())
	})

	t.Run("SupportedButUnregistered", func(t *testing.T) {
		spy := &SpyBackend{name: "remote"}
		router := NewRouter(logger)
		require.NoError(t, router.Register(LanguageC, spy))

		result := router.Route(ctx, Request{Language: "rust", Code: "fn main() {}"})
		assert.Equal(t, KindUnsupportedLanguage, result.Kind)
		assert.Equal(t, int32(0), spy.calls.Load())
	})

	t.Run("CaseInsensitiveAndAliases", func(t *testing.T) {
		spy := &SpyBackend{name: "interpreter", result: Succeeded("ok")}
		router := NewRouter(logger)
		require.NoError(t, router.Register(LanguageJavaScript, spy))

		for _, lang := range []string{"JavaScript", "  javascript ", "JS"} {
			result := router.Route(ctx, Request{Language: lang, Code: "1"})
			assert.True(t, result.Success, lang)
			assert.Equal(t, "ok", result.Output)
		}

		require.Len(t, spy.requests, 3)
		for _, req := range spy.requests {
			assert.Equal(t, "javascript", req.Language)
		}
	})

	t.Run("PanicBecomesInternalFailure", func(t *testing.T) {
		spy := &SpyBackend{name: "native", panic: "boom"}
		router := NewRouter(logger)
		require.NoError(t, router.Register(LanguageJava, spy))

		var result Result
		require.NotPanics(t, func() {
			result = router.Route(ctx, Request{Language: "java", Code: "class A {}"})
		})
		assert.False(t, result.Success)
		assert.Equal(t, KindInternalFailure, result.Kind)
		assert.Contains(t, result.Error, "boom")
	})

	t.Run("MutualExclusion", func(t *testing.T) {
		spy := &SpyBackend{name: "remote", result: Result{Success: true, Output: "out", Error: "leak", Kind: KindRuntimeFailure}}
		router := NewRouter(logger)
		require.NoError(t, router.Register(LanguageGo, spy))

		result := router.Route(ctx, Request{Language: "go", Code: "package main"})
		assert.True(t, result.Success)
		assert.Equal(t, "out", result.Output)
		assert.Empty(t, result.Error)
		assert.Empty(t, result.Kind)

		spy.result = Result{Output: "partial"}
		result = router.Route(ctx, Request{Language: "go", Code: "package main"})
		assert.False(t, result.Success)
		assert.Empty(t, result.Output)
		assert.Equal(t, KindInternalFailure, result.Kind)
		assert.NotEmpty(t, result.Error)
	})

	t.Run("ElapsedTimeOrdering", func(t *testing.T) {
		fast := &SpyBackend{name: "fast", delay: 10 * time.Millisecond, result: Succeeded("fast")}
		slow := &SpyBackend{name: "slow", delay: 80 * time.Millisecond, result: Succeeded("slow")}
		router := NewRouter(logger)
		require.NoError(t, router.Register(LanguageC, fast))
		require.NoError(t, router.Register(LanguageCPP, slow))

		t1 := router.Route(ctx, Request{Language: "c", Code: "x"}).ExecutionTimeMs
		t2 := router.Route(ctx, Request{Language: "cpp", Code: "x"}).ExecutionTimeMs

		assert.GreaterOrEqual(t, t1, int64(10))
		assert.Less(t, t1, t2)
	})

	t.Run("ObserverNotified", func(t *testing.T) {
		observer := &RecordingObserver{}
		router := NewRouter(logger, WithObserver(observer))
		require.NoError(t, router.Register(LanguagePython, &SpyBackend{name: "interpreter", result: Failed(KindTimeout, "timed out")}))
		require.NoError(t, router.Register(LanguageJava, &SpyBackend{name: "native", result: Succeeded("hi")}))

		router.Route(ctx, Request{Language: "python", Code: "x"})
		router.Route(ctx, Request{Language: "java", Code: "x"})
		router.Route(ctx, Request{Language: "cobol", Code: "x"})

		assert.Equal(t, []string{"interpreter/python", "native/java"}, observer.started)
		assert.Equal(t, []string{"interpreter/python/timed_out", "native/java/succeeded"}, observer.finished)
	})
}

func TestNormalize(t *testing.T) {
	result := normalize(Failed("", ""), -time.Second)
	assert.Equal(t, int64(0), result.ExecutionTimeMs)
	assert.Equal(t, KindInternalFailure, result.Kind)
	assert.Equal(t, "execution failed", result.Error)

	result = normalize(Succeeded(""), 1500*time.Millisecond)
	assert.True(t, result.Success)
	assert.Equal(t, int64(1500), result.ExecutionTimeMs)
}
