// ABOUTME: Sentinel errors for the subprocess JSON-RPC session
// ABOUTME: Callers classify failures with errors.Is

package rpc

import "errors"

var (
	// ErrNoResponse is returned when the subprocess closed its output
	// before a reply line arrived.
	ErrNoResponse = errors.New("no response from MCP server")

	// ErrNotConnected is returned by SendRequest without a live connection.
	ErrNotConnected = errors.New("not connected to MCP server")

	// ErrIDMismatch means a reply did not belong to the outstanding request.
	ErrIDMismatch = errors.New("response id does not match request id")

	// ErrFraming rejects a message that would span more than one line.
	ErrFraming = errors.New("message contains a newline")

	// ErrMalformed wraps replies that are not a JSON object.
	ErrMalformed = errors.New("malformed response")

	// ErrForcedKill reports that Close had to kill the subprocess.
	ErrForcedKill = errors.New("MCP server did not exit in time and was killed")
)
