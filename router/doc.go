// Package router delivers decoded frames to registered handlers.
//
// Three kinds of handler exist, all keyed by a unique name and guarded by a Filter:
//
// - raw handlers observe every matching frame
// - dispatchers consume matching frames, every match is invoked
// - the unhandled handler runs only when no dispatcher matched
//
// For each frame the Router invokes matching raw handlers, then matching
// dispatchers in registration order, then the unhandled handler if no dispatcher
// ran and its filter matches.
//
// A Router is owned by a single goroutine. Registration and Dispatch must not be
// called concurrently.
package router
