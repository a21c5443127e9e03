package engine

import (
	"context"
	"encoding/json"
	"fmt"
)

// Kind classifies a failed execution
type Kind string

// Failure kinds
const (
	KindUnsupportedLanguage Kind = "UnsupportedLanguage"
	KindCompilationFailure  Kind = "CompilationFailure"
	KindRuntimeFailure      Kind = "RuntimeFailure"
	KindTimeout             Kind = "Timeout"
	KindTransportFailure    Kind = "TransportFailure"
	KindInternalFailure     Kind = "InternalFailure"
)

// Terminal states reported by Result.Status
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusTimedOut  = "timed_out"
)

// Request is a single execution request
type Request struct {
	Language string   `json:"language"`
	Code     string   `json:"code"`
	Filename string   `json:"filename,omitempty"`
	Args     []string `json:"args,omitempty"`
	Stdin    string   `json:"stdin,omitempty"`
	Version  string   `json:"version,omitempty"`
}

// Result is the normalized outcome of an execution.
// Output is only meaningful on success, Error and Kind only on failure.
type Result struct {
	Success         bool
	Output          string
	Error           string
	Kind            Kind
	ExecutionTimeMs int64
}

// Backend is one execution strategy. Execute never returns a Go error;
// every fault is reported as a failure Result.
type Backend interface {
	Name() string
	Execute(ctx context.Context, req Request) Result
}

// Succeeded builds a success result
func Succeeded(output string) Result {
	return Result{Success: true, Output: output}
}

// Failed builds a failure result
func Failed(kind Kind, message string) Result {
	return Result{Kind: kind, Error: message}
}

// Failedf builds a failure result with a formatted message
func Failedf(kind Kind, format string, args ...any) Result {
	return Failed(kind, fmt.Sprintf(format, args...))
}

// Status returns the terminal state of the execution
func (r Result) Status() string {
	switch {
	case r.Success:
		return StatusSucceeded
	case r.Kind == KindTimeout:
		return StatusTimedOut
	default:
		return StatusFailed
	}
}

type resultJSON struct {
	Success         bool    `json:"success"`
	Output          *string `json:"output,omitempty"`
	Error           *string `json:"error,omitempty"`
	Kind            Kind    `json:"kind,omitempty"`
	ExecutionTimeMs int64   `json:"executionTimeMs"`
}

// MarshalJSON emits output on success and error/kind on failure, never both
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Success:         r.Success,
		ExecutionTimeMs: r.ExecutionTimeMs,
	}
	if r.Success {
		out.Output = &r.Output
	} else {
		out.Error = &r.Error
		out.Kind = r.Kind
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON
func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Result{
		Success:         in.Success,
		Kind:            in.Kind,
		ExecutionTimeMs: in.ExecutionTimeMs,
	}
	if in.Output != nil {
		r.Output = *in.Output
	}
	if in.Error != nil {
		r.Error = *in.Error
	}
	return nil
}
