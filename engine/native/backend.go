package native

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/isdmx/execbox/engine"
)

// Name is the backend name used in routes and metrics
const Name = "native"

// Defaults
const (
	DefaultTimeout        = 10 * time.Second
	DefaultCompileTimeout = 30 * time.Second
	DefaultCompiler       = "javac"
	DefaultRuntime        = "java"

	// NoOutputPlaceholder is returned for a successful run that printed nothing
	NoOutputPlaceholder = "execution finished (no output)"

	waitDelay = time.Second
)

var _ engine.Backend = (*Backend)(nil)

// Backend compiles Java source and runs the resulting class as a child process
type Backend struct {
	logger         *zap.Logger
	cmdRunner      CommandRunner
	fs             FileSystem
	tempDir        string
	compiler       string
	runtime        string
	timeout        time.Duration
	compileTimeout time.Duration
	outputLimit    int
}

// Option defines a functional option for Backend
type Option func(*Backend)

// WithCommandRunner sets the CommandRunner used for compilation
func WithCommandRunner(cmdRunner CommandRunner) Option {
	return func(b *Backend) {
		b.cmdRunner = cmdRunner
	}
}

// WithFileSystem sets the FileSystem used for scratch files
func WithFileSystem(fs FileSystem) Option {
	return func(b *Backend) {
		b.fs = fs
	}
}

// WithTempDir sets the base directory for per-request scratch directories
func WithTempDir(dir string) Option {
	return func(b *Backend) {
		b.tempDir = dir
	}
}

// WithToolchain sets the compiler and runtime commands
func WithToolchain(compiler, runtime string) Option {
	return func(b *Backend) {
		if compiler != "" {
			b.compiler = compiler
		}
		if runtime != "" {
			b.runtime = runtime
		}
	}
}

// WithTimeout sets the run timeout
func WithTimeout(timeout time.Duration) Option {
	return func(b *Backend) {
		if timeout > 0 {
			b.timeout = timeout
		}
	}
}

// WithCompileTimeout sets the compile timeout
func WithCompileTimeout(timeout time.Duration) Option {
	return func(b *Backend) {
		if timeout > 0 {
			b.compileTimeout = timeout
		}
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

// NewBackend creates a native backend with default implementations and optional interfaces
func NewBackend(logger *zap.Logger, opts ...Option) *Backend {
	b := &Backend{
		logger:         logger,
		cmdRunner:      &RealCommandRunner{},
		fs:             &RealFileSystem{},
		compiler:       DefaultCompiler,
		runtime:        DefaultRuntime,
		timeout:        DefaultTimeout,
		compileTimeout: DefaultCompileTimeout,
		outputLimit:    engine.DefaultOutputLimit,
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

// Execute compiles and runs the request
//
//nolint:gocritic // engine.Backend signature
func (b *Backend) Execute(ctx context.Context, req engine.Request) engine.Result {
	source := normalizeSource(req.Code)
	className := entryClassName(source)

	baseDir := b.tempDir
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	workDir := filepath.Join(baseDir, "run-"+uuid.NewString())
	sourcePath := filepath.Join(workDir, className+".java")
	artifactPath := filepath.Join(workDir, className+".class")

	if err := b.fs.MkdirAll(workDir, DirPermission); err != nil {
		b.logger.Error("failed to create work dir", zap.String("dir", workDir), zap.Error(err))
		return engine.Failedf(engine.KindInternalFailure, "failed to create work dir: %v", err)
	}
	defer b.cleanup(workDir, sourcePath, artifactPath)

	if err := b.fs.WriteFile(sourcePath, []byte(source), FilePermission); err != nil {
		b.logger.Error("failed to write source", zap.String("path", sourcePath), zap.Error(err))
		return engine.Failedf(engine.KindInternalFailure, "failed to write source: %v", err)
	}

	if result, ok := b.compile(ctx, workDir, sourcePath, className); !ok {
		return result
	}

	exists, err := b.fs.FileExists(artifactPath)
	if err != nil || !exists {
		b.logger.Error("compiled artifact missing",
			zap.String("path", artifactPath),
			zap.Error(err))
		return engine.Failedf(engine.KindInternalFailure, "compiled artifact not found: %s.class", className)
	}

	return b.run(ctx, workDir, className, req)
}

// compile returns ok=false together with the failure result when compilation did not succeed
func (b *Backend) compile(ctx context.Context, workDir, sourcePath, className string) (engine.Result, bool) {
	ctx, cancel := context.WithTimeout(ctx, b.compileTimeout)
	defer cancel()

	b.logger.Debug("compiling",
		zap.String("class", className),
		zap.String("dir", workDir))

	stdout, stderr, exitCode, err := b.cmdRunner.RunCommand(ctx, []string{
		b.compiler, "-d", workDir, "-cp", workDir, sourcePath,
	})
	if ctx.Err() != nil {
		b.logger.Warn("compilation timed out",
			zap.String("class", className),
			zap.Duration("timeout", b.compileTimeout))
		return timeoutResult(ctx, "compilation", b.compileTimeout), false
	}
	if err != nil {
		b.logger.Error("compiler unavailable", zap.String("compiler", b.compiler), zap.Error(err))
		return engine.Failedf(engine.KindInternalFailure, "compiler unavailable: %v", err), false
	}
	if exitCode != 0 {
		diagnostics := stderr
		if strings.TrimSpace(diagnostics) == "" {
			diagnostics = stdout
		}
		return engine.Failed(engine.KindCompilationFailure, "compilation failed:\n"+diagnostics), false
	}

	return engine.Result{}, true
}

//nolint:gocritic // engine.Request passed by value like everywhere else
func (b *Backend) run(ctx context.Context, workDir, className string, req engine.Request) engine.Result {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	args := append([]string{"-cp", workDir, className}, req.Args...)
	cmd := exec.CommandContext(ctx, b.runtime, args...) //nolint:gosec // runtime path comes from configuration
	cmd.Dir = workDir
	cmd.Env = buildEnv(workDir)
	cmd.Stdin = strings.NewReader(req.Stdin)
	cmd.WaitDelay = waitDelay
	configureProcess(cmd)

	// exec owns the copy goroutines so WaitDelay can cut them off when a
	// detached descendant keeps the output open
	stdout := engine.NewCappedBuffer(b.outputLimit)
	stderr := engine.NewCappedBuffer(b.outputLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		b.logger.Error("failed to start program", zap.String("runtime", b.runtime), zap.Error(err))
		return engine.Failedf(engine.KindInternalFailure, "failed to start program: %v", err)
	}

	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		b.logger.Warn("program timed out, process group killed",
			zap.String("class", className),
			zap.Duration("timeout", b.timeout))
		return timeoutResult(ctx, "execution", b.timeout)
	}
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		b.logger.Warn("program output held open after exit, pipes closed",
			zap.String("class", className),
			zap.Duration("wait_delay", waitDelay))
		waitErr = nil
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return engine.Failedf(engine.KindInternalFailure, "program failed: %v", waitErr)
		}
		exitCode = exitErr.ExitCode()
	}

	b.logger.Debug("program finished",
		zap.String("class", className),
		zap.Int("exit_code", exitCode),
		zap.Int("stdout_bytes", stdout.Len()),
		zap.Int("stderr_bytes", stderr.Len()))

	if exitCode != 0 {
		return engine.Failedf(engine.KindRuntimeFailure, "runtime error (exit code %d):\n%s", exitCode, strings.TrimSpace(stderr.String()))
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		out = NoOutputPlaceholder
	}
	return engine.Succeeded(out)
}

// cleanup removes the scratch files and directory; failures are logged only
func (b *Backend) cleanup(workDir, sourcePath, artifactPath string) {
	err := multierr.Combine(
		b.fs.Remove(sourcePath),
		b.fs.Remove(artifactPath),
		b.fs.RemoveAll(workDir),
	)
	if err != nil {
		b.logger.Warn("failed to clean up work dir",
			zap.String("dir", workDir),
			zap.Errors("errors", multierr.Errors(err)))
	}
}

// buildEnv returns the minimal environment handed to the program
func buildEnv(workDir string) []string {
	path := os.Getenv("PATH")
	if path == "" {
		path = "/usr/local/bin:/usr/bin:/bin"
	}

	env := []string{
		"PATH=" + path,
		"HOME=" + workDir,
		"TMPDIR=" + workDir,
		"CLASSPATH=" + workDir,
		"LANG=C.UTF-8",
	}
	if javaHome := os.Getenv("JAVA_HOME"); javaHome != "" {
		env = append(env, "JAVA_HOME="+javaHome)
	}
	return env
}

func timeoutResult(ctx context.Context, stage string, timeout time.Duration) engine.Result {
	if errors.Is(ctx.Err(), context.Canceled) {
		return engine.Failedf(engine.KindTimeout, "%s cancelled", stage)
	}
	return engine.Failedf(engine.KindTimeout, "%s timed out after %s", stage, timeout)
}
