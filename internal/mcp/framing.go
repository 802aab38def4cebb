package mcp

import (
	"bufio"
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
)

// MCP stdio uses NDJSON: one JSON value per line, newline terminated.

const initialFrameBuffer = 1 << 20 // 1 MiB; longer lines still work, they just grow

// writeFrame writes msg and its newline terminator in a single Write so
// concurrent writers serialized by the caller never interleave partial lines.
func writeFrame(w io.Writer, msg []byte) error {
	frame := make([]byte, 0, len(msg)+1)
	frame = append(frame, msg...)
	frame = append(frame, '\n')
	if _, err := w.Write(frame); err != nil {
		return errors.Wrap(err, "write frame")
	}
	return nil
}

// frameReader splits a byte stream into newline-delimited frames.
type frameReader struct {
	r *bufio.Reader
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReaderSize(r, initialFrameBuffer)}
}

// next returns the next non-empty line with surrounding whitespace removed.
// Bytes after the last newline are held until a newline arrives; if the
// stream ends first they are returned as a final frame.
func (f *frameReader) next() ([]byte, error) {
	for {
		line, err := f.r.ReadBytes('\n')
		trimmed := bytes.TrimSpace(line)
		if err != nil {
			if len(trimmed) > 0 && errors.Is(err, io.EOF) {
				return trimmed, nil
			}
			return nil, err
		}
		if len(trimmed) == 0 {
			continue
		}
		return trimmed, nil
	}
}
