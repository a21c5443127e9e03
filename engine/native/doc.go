// Package native implements the compile-and-run backend for Java.
//
// Each request gets its own scratch directory. The normalized source is
// written there, compiled with the configured compiler and the resulting
// class is started as a child process with a minimal environment, its own
// process group and a hard timeout. The scratch directory is removed on
// every exit path.
package native
