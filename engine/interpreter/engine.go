package interpreter

import (
	"context"
	"errors"
	"io"

	"github.com/isdmx/execbox/engine"
)

// ErrLimitUnsupported is returned by a Context that cannot enforce a ceiling
var ErrLimitUnsupported = errors.New("limit not supported by this engine")

// Engine creates isolated evaluation contexts for one language
type Engine interface {
	Language() engine.Language
	NewContext(opts ContextOptions) (Context, error)
}

// ContextOptions configures a new Context
type ContextOptions struct {
	Stdout io.Writer
	Stderr io.Writer
	// Args are exposed to the program where the language has a notion of argv
	Args []string
	// Grants lists optional capability modules the program may use
	Grants []string
}

// Context is a single-use evaluation context
type Context interface {
	SetStatementLimit(limit uint64) error
	SetCallStackLimit(depth int) error
	Eval(ctx context.Context, code string) (Value, error)
	Close() error
}

// Value is the result of an evaluation
type Value struct {
	Repr string
	Null bool
}

// NullValue is the value of a program that produced nothing
var NullValue = Value{Null: true}
