package executor

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/isdmx/execbox/config"
	"github.com/isdmx/execbox/engine"
	"github.com/isdmx/execbox/engine/interpreter"
	"github.com/isdmx/execbox/engine/native"
	"github.com/isdmx/execbox/engine/remote"
	"github.com/isdmx/execbox/metrics"
)

const bytesPerKB = 1024

// New creates the engine router with every configured route registered
func New(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) (*engine.Router, error) {
	interp := interpreter.NewBackend(logger.Named(interpreter.Name),
		interpreter.WithTimeout(cfg.InterpreterTimeout()),
		interpreter.WithWorkers(cfg.Interpreter.Workers),
		interpreter.WithStatementLimit(cfg.Interpreter.StatementLimit),
		interpreter.WithCallStackLimit(cfg.Interpreter.CallStackLimit),
		interpreter.WithOutputLimit(cfg.Interpreter.MaxOutputKB*bytesPerKB),
		interpreter.WithGrants(cfg.Interpreter.Grants),
	)

	backends := map[string]engine.Backend{
		config.BackendRemote: remote.NewBackend(logger.Named(remote.Name),
			remote.NewHTTPClient(cfg.Remote.Endpoint, cfg.RemoteTimeout()),
			remote.WithVersions(cfg.Remote.Versions),
		),
		config.BackendInterpreter: interp,
		config.BackendNative: native.NewBackend(logger.Named(native.Name),
			native.WithTempDir(cfg.Native.TempDir),
			native.WithToolchain(cfg.Native.Compiler, cfg.Native.Runtime),
			native.WithTimeout(cfg.NativeTimeout()),
			native.WithCompileTimeout(cfg.NativeCompileTimeout()),
			native.WithOutputLimit(cfg.Native.MaxOutputKB*bytesPerKB),
		),
	}

	var opts []engine.RouterOption
	if collector != nil {
		opts = append(opts, engine.WithObserver(collector))
	}
	router := engine.NewRouter(logger.Named("engine"), opts...)

	names := make([]string, 0, len(cfg.Engine.Routes))
	for name := range cfg.Engine.Routes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		backendName := cfg.Engine.Routes[name]

		lang, ok := engine.ParseLanguage(name)
		if !ok {
			return nil, fmt.Errorf("unsupported language %q in engine.routes", name)
		}

		backend, ok := backends[backendName]
		if !ok {
			return nil, fmt.Errorf("unsupported backend %q for %s", backendName, lang)
		}

		switch backendName {
		case config.BackendInterpreter:
			if !interp.Supports(lang) {
				return nil, fmt.Errorf("interpreter backend has no engine for %s", lang)
			}
		case config.BackendNative:
			if lang != engine.LanguageJava {
				return nil, fmt.Errorf("native backend only runs java, not %s", lang)
			}
		}

		if err := router.Register(lang, backend); err != nil {
			return nil, fmt.Errorf("registering route %s: %w", name, err)
		}
	}

	logger.Info("execution engine ready",
		zap.Strings("languages", router.Languages()),
		zap.String("remote.endpoint", cfg.Remote.Endpoint),
		zap.Int("interpreter.workers", cfg.Interpreter.Workers),
		zap.Int("interpreter.timeout_sec", cfg.Interpreter.TimeoutSec),
		zap.Int("native.timeout_sec", cfg.Native.TimeoutSec),
		zap.String("native.compiler", cfg.Native.Compiler))

	return router, nil
}
