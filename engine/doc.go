// Package engine provides the core of the code execution engine.
//
// The engine package defines the request and result contract shared by all
// execution backends, the error taxonomy, the supported language set, and
// the Router that validates a request, dispatches it to the backend
// registered for its language and normalizes whatever comes back into a
// single well-formed Result.
//
// Backends live in the remote, interpreter and native subpackages. Each one
// converts its own faults into a failure Result; the Router recovers from
// anything that still escapes.
//
// Usage:
//
//	router := engine.NewRouter(logger)
//	if err := router.Register(engine.LanguagePython, interpreterBackend); err != nil {
//	    log.Fatal(err)
//	}
//	result := router.Route(ctx, engine.Request{Language: "python", Code: "print('hi')"})
package engine
