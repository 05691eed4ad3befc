// Package eventloop provides the single logical thread of control that owns
// buffer synchronization state.
//
// Work reaches the loop in two ways: Post queues a function to run after
// everything already queued, and AfterFunc arms a timer whose callback is
// posted when it fires. Functions run one at a time, in order, on the
// goroutine executing Run, so state touched only from loop functions needs no
// locking.
//
// Manual implements the same Scheduler interface with explicit control over
// time for deterministic tests.
package eventloop
