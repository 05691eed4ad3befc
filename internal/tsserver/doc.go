// Package tsserver is the command-dispatch side of the bridge: it runs a
// TypeScript server process and exchanges protocol messages with it.
//
// Requests are written to the server's stdin as one JSON object per line.
// Responses and events arrive on stdout framed with a Content-Length header.
// Asynchronous requests such as geterr produce no response; their completion
// is signalled by a requestCompleted event carrying the request sequence
// number.
//
// # Components
//
//   - Transport: framing, sequence numbers, response and event routing
//   - Server: the child process and its cancellation pipe
//   - Client: command execution, API version and capability oracle, resource
//     to server path mapping
//   - Supervisor: crash detection and restart with exponential backoff
//
// # Cancellation
//
// The server is started with --cancellationPipeName. Cancelling a request
// creates a marker file named after the request sequence number which the
// server polls. Cancellation is advisory: work the server already finished is
// still reported.
package tsserver
