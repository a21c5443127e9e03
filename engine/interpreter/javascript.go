package interpreter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dop251/goja"

	"github.com/isdmx/execbox/engine"
)

// JavaScriptEngine evaluates JavaScript with goja. Each context owns a
// separate goja.Runtime with no require() and no host objects.
type JavaScriptEngine struct{}

// NewJavaScriptEngine creates a JavaScript engine
func NewJavaScriptEngine() *JavaScriptEngine {
	return &JavaScriptEngine{}
}

// Language returns javascript
func (*JavaScriptEngine) Language() engine.Language {
	return engine.LanguageJavaScript
}

// NewContext creates a fresh runtime with console bound to the given writers
func (*JavaScriptEngine) NewContext(opts ContextOptions) (Context, error) {
	c := &jsContext{
		vm:     goja.New(),
		stdout: writerOrDiscard(opts.Stdout),
		stderr: writerOrDiscard(opts.Stderr),
	}

	if err := c.installConsole(); err != nil {
		return nil, fmt.Errorf("installing console: %w", err)
	}

	return c, nil
}

type jsContext struct {
	vm     *goja.Runtime
	stdout io.Writer
	stderr io.Writer
}

func (c *jsContext) installConsole() error {
	console := c.vm.NewObject()

	streams := []struct {
		name string
		w    io.Writer
	}{
		{"log", c.stdout},
		{"info", c.stdout},
		{"debug", c.stdout},
		{"error", c.stderr},
		{"warn", c.stderr},
	}
	for _, s := range streams {
		if err := console.Set(s.name, c.printer(s.w)); err != nil {
			return err
		}
	}

	return c.vm.Set("console", console)
}

func (c *jsContext) printer(w io.Writer) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = c.format(arg)
		}
		_, _ = io.WriteString(w, strings.Join(parts, " ")+"\n")
		return goja.Undefined()
	}
}

// format renders plain objects and arrays as JSON and everything else as its string form
func (c *jsContext) format(v goja.Value) string {
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	if _, isFunc := goja.AssertFunction(obj); isFunc || obj.ClassName() == "Error" {
		return obj.String()
	}

	stringify, ok := goja.AssertFunction(c.vm.Get("JSON").ToObject(c.vm).Get("stringify"))
	if !ok {
		return obj.String()
	}
	out, err := stringify(goja.Undefined(), obj)
	if err != nil || goja.IsUndefined(out) {
		return obj.String()
	}
	return out.String()
}

// SetStatementLimit is not enforceable on goja
func (*jsContext) SetStatementLimit(uint64) error {
	return ErrLimitUnsupported
}

func (c *jsContext) SetCallStackLimit(depth int) error {
	c.vm.SetMaxCallStackSize(depth)
	return nil
}

func (c *jsContext) Eval(ctx context.Context, code string) (Value, error) {
	stop := context.AfterFunc(ctx, func() {
		c.vm.Interrupt(ctx.Err())
	})
	defer stop()

	v, err := c.vm.RunString(code)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return Value{}, fmt.Errorf("evaluation interrupted: %w", context.Cause(ctx))
		}
		return Value{}, err
	}

	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return NullValue, nil
	}
	return Value{Repr: v.String()}, nil
}

func (c *jsContext) Close() error {
	c.vm.ClearInterrupt()
	return nil
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
