package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/isdmx/execbox/engine"
)

// Name is the backend name used in routes and metrics
const Name = "remote"

// DefaultVersion asks the API for the latest installed runtime
const DefaultVersion = "*"

// Backend delegates execution to a remote API
type Backend struct {
	logger   *zap.Logger
	client   Client
	versions map[string]string
}

// BackendOption defines a functional option for Backend
type BackendOption func(*Backend)

// WithVersions sets the per-language default runtime versions
func WithVersions(versions map[string]string) BackendOption {
	return func(b *Backend) {
		for lang, version := range versions {
			b.versions[strings.ToLower(lang)] = version
		}
	}
}

// NewBackend creates a remote delegation backend
func NewBackend(logger *zap.Logger, client Client, opts ...BackendOption) *Backend {
	b := &Backend{
		logger:   logger,
		client:   client,
		versions: make(map[string]string),
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

// Execute forwards the request to the execution API
//
//nolint:gocritic // engine.Backend signature
func (b *Backend) Execute(ctx context.Context, req engine.Request) engine.Result {
	pistonReq := b.buildRequest(req)

	b.logger.Debug("delegating execution",
		zap.String("language", pistonReq.Language),
		zap.String("version", pistonReq.Version),
		zap.String("filename", pistonReq.Files[0].Name))

	resp, err := b.client.Execute(ctx, pistonReq)
	if err != nil {
		b.logger.Warn("remote execution failed",
			zap.String("language", pistonReq.Language),
			zap.Bool("http_status", errors.Is(err, ErrHTTPStatus)),
			zap.Error(err))
		if resp.Message != "" {
			return engine.Failed(engine.KindTransportFailure, resp.Message)
		}
		return engine.Failed(engine.KindTransportFailure, err.Error())
	}

	return translate(resp)
}

func (b *Backend) buildRequest(req engine.Request) PistonRequest {
	lang, _ := engine.ParseLanguage(req.Language)

	filename := req.Filename
	if filename == "" {
		filename = engine.DefaultFilename(lang)
	}

	version := req.Version
	if version == "" {
		version = b.versions[lang.String()]
	}
	if version == "" {
		version = DefaultVersion
	}

	args := req.Args
	if args == nil {
		args = []string{}
	}

	return PistonRequest{
		Language: lang.String(),
		Version:  version,
		Files:    []File{{Name: filename, Content: req.Code}},
		Args:     args,
		Stdin:    req.Stdin,
	}
}

func translate(resp PistonResponse) engine.Result {
	if c := resp.Compile; c != nil && c.Code != nil && *c.Code != 0 {
		diagnostics := c.Stderr
		if diagnostics == "" {
			diagnostics = c.Output
		}
		return engine.Failed(engine.KindCompilationFailure, "compilation failed:\n"+diagnostics)
	}

	run := resp.Run
	switch {
	case run.Code != nil && *run.Code != 0:
		if run.Stderr != "" {
			return engine.Failed(engine.KindRuntimeFailure, run.Stderr)
		}
		return engine.Failedf(engine.KindRuntimeFailure, "Unknown error (exit code %d)", *run.Code)
	case run.Code == nil && run.Signal != nil:
		if run.Stderr != "" {
			return engine.Failed(engine.KindRuntimeFailure, run.Stderr)
		}
		return engine.Failed(engine.KindRuntimeFailure, fmt.Sprintf("Unknown error (signal %s)", *run.Signal))
	default:
		return engine.Succeeded(run.Stdout)
	}
}
