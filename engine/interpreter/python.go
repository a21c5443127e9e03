package interpreter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/isdmx/execbox/engine"
)

const pythonFilename = "main.py"

// ErrUnknownGrant is returned for a capability module that does not exist
var ErrUnknownGrant = errors.New("unknown capability grant")

var grantModules = map[string]*starlarkstruct.Module{
	"json": starlarkjson.Module,
	"math": starlarkmath.Module,
	"time": starlarktime.Module,
}

var pythonFileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Grants returns the names of the modules that can be granted to Python programs
func Grants() []string {
	names := make([]string, 0, len(grantModules))
	for name := range grantModules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PythonEngine evaluates the Starlark dialect of Python. Programs get print
// and sys, plus any granted library modules; load() is not available.
type PythonEngine struct{}

// NewPythonEngine creates a Python engine
func NewPythonEngine() *PythonEngine {
	return &PythonEngine{}
}

// Language returns python
func (*PythonEngine) Language() engine.Language {
	return engine.LanguagePython
}

// NewContext creates a fresh thread and predeclared environment
func (*PythonEngine) NewContext(opts ContextOptions) (Context, error) {
	c := &pyContext{
		thread: &starlark.Thread{Name: pythonFilename},
		stdout: &stream{name: "stdout", w: writerOrDiscard(opts.Stdout)},
		stderr: &stream{name: "stderr", w: writerOrDiscard(opts.Stderr)},
	}
	c.thread.Print = func(_ *starlark.Thread, msg string) {
		_, _ = io.WriteString(c.stdout.w, msg+"\n")
	}

	argv := make([]starlark.Value, 0, len(opts.Args)+1)
	argv = append(argv, starlark.String(pythonFilename))
	for _, arg := range opts.Args {
		argv = append(argv, starlark.String(arg))
	}

	c.predeclared = starlark.StringDict{
		"print": starlark.NewBuiltin("print", c.print),
		"sys": &starlarkstruct.Module{
			Name: "sys",
			Members: starlark.StringDict{
				"stdout": c.stdout,
				"stderr": c.stderr,
				"argv":   starlark.NewList(argv),
			},
		},
	}
	for _, grant := range opts.Grants {
		module, ok := grantModules[grant]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownGrant, grant)
		}
		c.predeclared[grant] = module
	}

	return c, nil
}

type pyContext struct {
	thread      *starlark.Thread
	predeclared starlark.StringDict
	stdout      *stream
	stderr      *stream
}

func (c *pyContext) SetStatementLimit(limit uint64) error {
	c.thread.SetMaxExecutionSteps(limit)
	return nil
}

// SetCallStackLimit is not enforceable on Starlark
func (*pyContext) SetCallStackLimit(int) error {
	return ErrLimitUnsupported
}

// Eval runs the program; a trailing expression statement becomes the value
func (c *pyContext) Eval(ctx context.Context, code string) (Value, error) {
	stop := context.AfterFunc(ctx, func() {
		c.thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	f, err := pythonFileOptions.Parse(pythonFilename, code, 0)
	if err != nil {
		return Value{}, err
	}

	var last syntax.Expr
	if n := len(f.Stmts); n > 0 {
		if stmt, ok := f.Stmts[n-1].(*syntax.ExprStmt); ok {
			last = stmt.X
			f.Stmts = f.Stmts[:n-1]
		}
	}

	prog, err := starlark.FileProgram(f, c.predeclared.Has)
	if err != nil {
		return Value{}, err
	}

	globals, err := prog.Init(c.thread, c.predeclared)
	if err != nil {
		return Value{}, starlarkError(err)
	}
	if last == nil {
		return NullValue, nil
	}

	env := make(starlark.StringDict, len(c.predeclared)+len(globals))
	for name, v := range c.predeclared {
		env[name] = v
	}
	for name, v := range globals {
		env[name] = v
	}

	v, err := starlark.EvalExprOptions(pythonFileOptions, c.thread, last, env)
	if err != nil {
		return Value{}, starlarkError(err)
	}
	if v == nil || v == starlark.None {
		return NullValue, nil
	}
	return Value{Repr: str(v)}, nil
}

func (*pyContext) Close() error {
	return nil
}

// print(*args, sep=" ", end="\n", file=sys.stdout)
func (c *pyContext) print(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	sep, end := " ", "\n"
	out := c.stdout

	for _, kv := range kwargs {
		key, _ := starlark.AsString(kv[0])
		value := kv[1]
		switch key {
		case "sep", "end":
			if value == starlark.None {
				continue
			}
			s, ok := starlark.AsString(value)
			if !ok {
				return nil, fmt.Errorf("%s: %s must be a string, not %s", b.Name(), key, value.Type())
			}
			if key == "sep" {
				sep = s
			} else {
				end = s
			}
		case "file":
			if value == starlark.None {
				continue
			}
			s, ok := value.(*stream)
			if !ok {
				return nil, fmt.Errorf("%s: file must be sys.stdout or sys.stderr, not %s", b.Name(), value.Type())
			}
			out = s
		case "flush":
		default:
			return nil, fmt.Errorf("%s: unexpected keyword argument %s", b.Name(), key)
		}
	}

	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = str(arg)
	}
	_, _ = io.WriteString(out.w, strings.Join(parts, sep)+end)

	return starlark.None, nil
}

func str(v starlark.Value) string {
	if s, ok := starlark.AsString(v); ok {
		return s
	}
	return v.String()
}

func starlarkError(err error) error {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return errors.New(evalErr.Backtrace())
	}
	return err
}

// stream is the value of sys.stdout and sys.stderr
type stream struct {
	name string
	w    io.Writer
}

var _ starlark.HasAttrs = (*stream)(nil)

func (s *stream) String() string        { return "<sys." + s.name + ">" }
func (s *stream) Type() string          { return "stream" }
func (s *stream) Freeze()               {}
func (s *stream) Truth() starlark.Bool  { return starlark.True }
func (s *stream) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: stream") }

func (s *stream) Attr(name string) (starlark.Value, error) {
	if name == "write" {
		return starlark.NewBuiltin("write", s.write), nil
	}
	return nil, nil
}

func (s *stream) AttrNames() []string {
	return []string{"write"}
}

func (s *stream) write(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var text string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &text); err != nil {
		return nil, err
	}
	n, _ := io.WriteString(s.w, text)
	return starlark.MakeInt(n), nil
}
