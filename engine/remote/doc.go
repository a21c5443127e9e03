// Package remote implements the remote delegation backend.
//
// The backend forwards a request to a Piston-compatible execution API in a
// single synchronous call and translates the reply into an engine.Result.
// There are no retries; the only time bound is the HTTP client's own timeout.
package remote
