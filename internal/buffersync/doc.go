// Package buffersync keeps tsserver's model of open buffers consistent with
// the editor's documents and schedules background diagnostics.
//
// Edits are coalesced per file by a synchronizer and sent as a single
// updateOpen command, which is flushed before any other command reaches the
// server. Diagnostics requests are debounced, ordered by when each file was
// queued, and superseded when new edits arrive: at most one geterr request is
// in flight, and files a cancelled request had not yet served are folded into
// its successor.
//
// All state in this package is owned by a single event loop. Every exported
// method of Support must be called from a function running on that loop;
// completions from tsserver and configuration changes are posted onto it.
package buffersync
