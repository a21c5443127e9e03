package native

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/execbox/engine"
)

const helloSource = `public class Main {
    public static void main(String[] args) {
        System.out.println("hi");
    }
}`

// MockCommandRunner implements CommandRunner for testing. On success it
// writes the class file next to the source like javac -d would.
type MockCommandRunner struct {
	stdout        string
	stderr        string
	exitCode      int
	err           error
	skipArtifact  bool
	blockUntilCtx bool

	mu      sync.Mutex
	calls   [][]string
	sources []string
}

func (m *MockCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	sourcePath := args[len(args)-1]
	content, _ := os.ReadFile(sourcePath)

	m.mu.Lock()
	m.calls = append(m.calls, args)
	m.sources = append(m.sources, string(content))
	m.mu.Unlock()

	if m.blockUntilCtx {
		<-ctx.Done()
		return "", "", -1, nil
	}
	if m.err == nil && m.exitCode == 0 && !m.skipArtifact {
		artifact := strings.TrimSuffix(sourcePath, ".java") + ".class"
		if writeErr := os.WriteFile(artifact, []byte{0xCA, 0xFE, 0xBA, 0xBE}, 0o600); writeErr != nil {
			return "", "", 0, writeErr
		}
	}
	return m.stdout, m.stderr, m.exitCode, m.err
}

// FailingRemoveFileSystem wraps RealFileSystem and fails single-file removals
type FailingRemoveFileSystem struct {
	RealFileSystem
}

func (FailingRemoveFileSystem) Remove(string) error {
	return errors.New("device busy")
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("runtime scripts require a POSIX shell")
	}
}

func requireSetsid(t *testing.T) {
	t.Helper()
	requireUnix(t)
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}
}

// writeRuntime creates a fake JVM. Its arguments are: -cp <dir> <class> [args...]
func writeRuntime(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-java")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755)) //nolint:gosec // test script must be executable
	return path
}

func newTestBackend(t *testing.T, runner CommandRunner, script string, opts ...Option) (*Backend, string) {
	t.Helper()
	base := t.TempDir()
	opts = append([]Option{
		WithCommandRunner(runner),
		WithTempDir(base),
		WithToolchain("javac", writeRuntime(t, script)),
	}, opts...)
	return NewBackend(zaptest.NewLogger(t), opts...), base
}

func assertNoLeftovers(t *testing.T, base string) {
	t.Helper()
	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directories left behind")
}

func TestBackendRun(t *testing.T) {
	requireUnix(t)

	tests := []struct {
		name    string
		script  string
		req     engine.Request
		success bool
		output  string
		kind    engine.Kind
		message string
	}{
		{
			name:    "TrimmedStdout",
			script:  `printf '  hello from %s  \n\n' "$3"`,
			req:     engine.Request{Code: helloSource},
			success: true,
			output:  "hello from Main",
		},
		{
			name:    "NoOutput",
			script:  "exit 0",
			req:     engine.Request{Code: helloSource},
			success: true,
			output:  NoOutputPlaceholder,
		},
		{
			name:    "ArgsForwarded",
			script:  `shift 3; echo "$@"`,
			req:     engine.Request{Code: helloSource, Args: []string{"a", "b c"}},
			success: true,
			output:  "a b c",
		},
		{
			name:    "StdinPiped",
			script:  "cat",
			req:     engine.Request{Code: helloSource, Stdin: "from stdin\n"},
			success: true,
			output:  "from stdin",
		},
		{
			name:    "MinimalEnvironment",
			script:  `echo "$CLASSPATH" | grep -q run- && [ -z "$EXECBOX_SECRET" ] && echo clean`,
			req:     engine.Request{Code: helloSource},
			success: true,
			output:  "clean",
		},
		{
			name:    "NonZeroExit",
			script:  "echo partial; echo boom >&2; exit 3",
			req:     engine.Request{Code: helloSource},
			kind:    engine.KindRuntimeFailure,
			message: "runtime error (exit code 3):\nboom",
		},
	}

	t.Setenv("EXECBOX_SECRET", "leak")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, base := newTestBackend(t, &MockCommandRunner{}, tt.script)

			result := backend.Execute(context.Background(), tt.req)

			require.Equal(t, tt.success, result.Success, "result: %+v", result)
			if tt.success {
				assert.Equal(t, tt.output, result.Output)
			} else {
				assert.Equal(t, tt.kind, result.Kind)
				assert.Equal(t, tt.message, result.Error)
			}
			assertNoLeftovers(t, base)
		})
	}
}

func TestBackendCompile(t *testing.T) {
	requireUnix(t)

	t.Run("CommandLine", func(t *testing.T) {
		runner := &MockCommandRunner{}
		backend, _ := newTestBackend(t, runner, "exit 0")

		result := backend.Execute(context.Background(), engine.Request{
			Code: "package demo;\npublic class Greeter { public static void main(String[] a) {} }",
		})
		require.True(t, result.Success, result.Error)

		require.Len(t, runner.calls, 1)
		args := runner.calls[0]
		require.Len(t, args, 6)
		assert.Equal(t, "javac", args[0])
		assert.Equal(t, "-d", args[1])
		assert.Equal(t, args[2], args[4])
		assert.Equal(t, filepath.Join(args[2], "Greeter.java"), args[5])
		assert.True(t, strings.HasPrefix(filepath.Base(args[2]), "run-"))
		assert.NotContains(t, runner.sources[0], "package demo")
	})

	t.Run("Diagnostics", func(t *testing.T) {
		runner := &MockCommandRunner{exitCode: 1, stderr: "Main.java:1: error: ';' expected\n1 error\n"}
		backend, base := newTestBackend(t, runner, "exit 0")

		result := backend.Execute(context.Background(), engine.Request{Code: "class Main { int x }"})
		assert.Equal(t, engine.KindCompilationFailure, result.Kind)
		assert.Equal(t, "compilation failed:\nMain.java:1: error: ';' expected\n1 error\n", result.Error)
		assertNoLeftovers(t, base)
	})

	t.Run("CompilerUnavailable", func(t *testing.T) {
		runner := &MockCommandRunner{err: errors.New(`exec: "javac": executable file not found in $PATH`)}
		backend, base := newTestBackend(t, runner, "exit 0")

		result := backend.Execute(context.Background(), engine.Request{Code: helloSource})
		assert.Equal(t, engine.KindInternalFailure, result.Kind)
		assert.Contains(t, result.Error, "compiler unavailable")
		assertNoLeftovers(t, base)
	})

	t.Run("MissingArtifact", func(t *testing.T) {
		runner := &MockCommandRunner{skipArtifact: true}
		backend, base := newTestBackend(t, runner, "exit 0")

		result := backend.Execute(context.Background(), engine.Request{Code: helloSource})
		assert.Equal(t, engine.KindInternalFailure, result.Kind)
		assert.Equal(t, "compiled artifact not found: Main.class", result.Error)
		assertNoLeftovers(t, base)
	})

	t.Run("CompileTimeout", func(t *testing.T) {
		runner := &MockCommandRunner{blockUntilCtx: true}
		backend, base := newTestBackend(t, runner, "exit 0", WithCompileTimeout(50*time.Millisecond))

		result := backend.Execute(context.Background(), engine.Request{Code: helloSource})
		assert.Equal(t, engine.KindTimeout, result.Kind)
		assert.Contains(t, result.Error, "compilation timed out")
		assertNoLeftovers(t, base)
	})
}

func TestBackendTimeout(t *testing.T) {
	requireUnix(t)

	// the background child shares the process group and must die with it
	backend, base := newTestBackend(t, &MockCommandRunner{}, "sleep 30 &\nwait", WithTimeout(200*time.Millisecond))

	start := time.Now()
	result := backend.Execute(context.Background(), engine.Request{Code: helloSource})
	elapsed := time.Since(start)

	assert.False(t, result.Success)
	assert.Equal(t, engine.KindTimeout, result.Kind)
	assert.Equal(t, "execution timed out after 200ms", result.Error)
	assert.Less(t, elapsed, 5*time.Second)
	assertNoLeftovers(t, base)
}

func TestBackendDetachedDescendant(t *testing.T) {
	requireSetsid(t)

	t.Run("TimeoutIsBounded", func(t *testing.T) {
		// the detached sleep leaves the process group and keeps stdout open
		backend, base := newTestBackend(t, &MockCommandRunner{}, "setsid sleep 30 &\nsleep 30", WithTimeout(200*time.Millisecond))

		start := time.Now()
		result := backend.Execute(context.Background(), engine.Request{Code: helloSource})
		elapsed := time.Since(start)

		assert.Equal(t, engine.KindTimeout, result.Kind)
		assert.Equal(t, "execution timed out after 200ms", result.Error)
		assert.Less(t, elapsed, 5*time.Second)
		assertNoLeftovers(t, base)
	})

	t.Run("CleanExitIsBounded", func(t *testing.T) {
		backend, base := newTestBackend(t, &MockCommandRunner{}, "setsid sleep 30 &\necho ok", WithTimeout(20*time.Second))

		start := time.Now()
		result := backend.Execute(context.Background(), engine.Request{Code: helloSource})
		elapsed := time.Since(start)

		require.True(t, result.Success, result.Error)
		assert.Equal(t, "ok", result.Output)
		assert.Less(t, elapsed, 5*time.Second)
		assertNoLeftovers(t, base)
	})
}

func TestBackendStartFailure(t *testing.T) {
	requireUnix(t)

	backend, base := newTestBackend(t, &MockCommandRunner{}, "exit 0",
		WithToolchain("", filepath.Join(t.TempDir(), "missing-java")))

	result := backend.Execute(context.Background(), engine.Request{Code: helloSource})
	assert.Equal(t, engine.KindInternalFailure, result.Kind)
	assert.Contains(t, result.Error, "failed to start program")
	assertNoLeftovers(t, base)
}

func TestBackendCleanup(t *testing.T) {
	requireUnix(t)

	t.Run("SequentialDefaultNames", func(t *testing.T) {
		runner := &MockCommandRunner{}
		backend, base := newTestBackend(t, runner, "echo ok")

		for i := 0; i < 5; i++ {
			result := backend.Execute(context.Background(), engine.Request{Code: "static void main(String[] a) {}"})
			require.True(t, result.Success, result.Error)
		}

		assertNoLeftovers(t, base)
		for _, args := range runner.calls {
			assert.Equal(t, "Main.java", filepath.Base(args[len(args)-1]))
		}
	})

	t.Run("ConcurrentSameClass", func(t *testing.T) {
		runner := &MockCommandRunner{}
		backend, base := newTestBackend(t, runner, "echo ok")

		const n = 8
		var wg sync.WaitGroup
		results := make([]engine.Result, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = backend.Execute(context.Background(), engine.Request{Code: helloSource})
			}(i)
		}
		wg.Wait()

		dirs := make(map[string]bool)
		for _, args := range runner.calls {
			dirs[args[2]] = true
		}
		assert.Len(t, dirs, n)
		for _, result := range results {
			assert.True(t, result.Success, result.Error)
		}
		assertNoLeftovers(t, base)
	})

	t.Run("RemovalErrorsNotEscalated", func(t *testing.T) {
		backend, base := newTestBackend(t, &MockCommandRunner{}, "echo ok", WithFileSystem(FailingRemoveFileSystem{}))

		result := backend.Execute(context.Background(), engine.Request{Code: helloSource})
		assert.True(t, result.Success)
		assert.Equal(t, "ok", result.Output)
		assertNoLeftovers(t, base)
	})
}

func TestRealCommandRunner(t *testing.T) {
	requireUnix(t)
	runner := RealCommandRunner{}

	stdout, stderr, code, err := runner.RunCommand(context.Background(), []string{"sh", "-c", "echo out; echo err >&2; exit 2"})
	require.NoError(t, err)
	assert.Equal(t, "out\n", stdout)
	assert.Equal(t, "err\n", stderr)
	assert.Equal(t, 2, code)

	if _, lookErr := exec.LookPath("setsid"); lookErr == nil {
		start := time.Now()
		stdout, _, code, err = runner.RunCommand(context.Background(), []string{"sh", "-c", "setsid sleep 30 & echo compiled"})
		require.NoError(t, err)
		assert.Equal(t, "compiled\n", stdout)
		assert.Equal(t, 0, code)
		assert.Less(t, time.Since(start), 5*time.Second)
	}

	_, _, _, err = runner.RunCommand(context.Background(), nil)
	assert.Error(t, err)

	_, _, _, err = runner.RunCommand(context.Background(), []string{filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)
}

func TestRealFileSystem(t *testing.T) {
	fs := RealFileSystem{}
	dir := filepath.Join(t.TempDir(), "a", "b")

	require.NoError(t, fs.MkdirAll(dir, DirPermission))
	path := filepath.Join(dir, "Main.java")
	require.NoError(t, fs.WriteFile(path, []byte("class Main {}"), FilePermission))

	exists, err := fs.FileExists(path)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, fs.Remove(path))
	require.NoError(t, fs.Remove(path))

	exists, err = fs.FileExists(path)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, fs.RemoveAll(dir))
}
