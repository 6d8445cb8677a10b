// ABOUTME: Line-oriented transport channel over the subprocess stdin/stdout
// ABOUTME: One JSON document per line, 10MB max line; callers serialize access

package rpc

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

const maxScannerBuffer = 10 * 1024 * 1024 // 10MB

// Channel writes and reads newline-delimited messages.
type Channel struct {
	w       io.Writer
	scanner *bufio.Scanner
}

// NewChannel wraps the subprocess input (w) and output (r) streams.
func NewChannel(w io.Writer, r io.Reader) *Channel {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScannerBuffer)
	return &Channel{w: w, scanner: scanner}
}

// WriteLine writes one message followed by a newline in a single Write call.
func (c *Channel) WriteLine(msg []byte) error {
	msg = bytes.TrimSuffix(msg, []byte{'\n'})
	if bytes.IndexByte(msg, '\n') >= 0 {
		return ErrFraming
	}

	buf := make([]byte, 0, len(msg)+1)
	buf = append(buf, msg...)
	buf = append(buf, '\n')
	if _, err := c.w.Write(buf); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// ReadLine blocks until one non-empty line is available and returns a copy
// of it without the newline. EOF yields ErrNoResponse.
func (c *Channel) ReadLine() ([]byte, error) {
	for c.scanner.Scan() {
		line := bytes.TrimSpace(c.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		return bytes.Clone(line), nil
	}
	if err := c.scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading message: %w", err)
	}
	return nil, ErrNoResponse
}
