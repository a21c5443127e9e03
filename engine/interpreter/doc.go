// Package interpreter implements the embedded interpreter backend.
//
// Source code is evaluated in-process by an Engine. Every request gets a
// fresh, isolated Context with its own output buffers, its own resource
// ceilings and only the capabilities explicitly granted by configuration.
// Evaluations run on a bounded worker pool under a wall-clock timeout that
// covers both queueing and evaluation; on timeout the evaluation is
// cancelled cooperatively and the caller is answered immediately.
//
// Two engines are provided: JavaScript on goja and a Python dialect on
// Starlark.
package interpreter
