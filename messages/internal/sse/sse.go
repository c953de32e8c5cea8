// Package sse decodes Server-Sent-Events frames.
package sse

import (
	"bufio"
	"bytes"
	"io"
)

// Frame is one dispatched SSE event. Data joins multiple data lines with "\n".
type Frame struct {
	Event string
	Data  []byte
	ID    string
}

type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next frame that carries an event name or data.
// It returns io.EOF once the source is exhausted with no pending frame.
func (d *Decoder) Next() (Frame, error) {
	var (
		f       Frame
		data    [][]byte
		pending bool
	)
	flush := func() Frame {
		f.Data = bytes.Join(data, []byte("\n"))
		return f
	}

	for {
		line, err := d.r.ReadBytes('\n')
		if err != nil {
			// A final frame may be unterminated.
			if line = bytes.TrimRight(line, "\r\n"); len(line) > 0 {
				if d.field(&f, &data, line) {
					pending = true
				}
			}
			if pending {
				return flush(), nil
			}
			return Frame{}, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if !pending {
				continue
			}
			return flush(), nil
		}
		if d.field(&f, &data, line) {
			pending = true
		}
	}
}

// field applies one non-empty line and reports whether it contributed to
// the frame.
func (d *Decoder) field(f *Frame, data *[][]byte, line []byte) bool {
	// Comment line.
	if line[0] == ':' {
		return false
	}
	name, val, _ := bytes.Cut(line, []byte(":"))
	if len(val) > 0 && val[0] == ' ' {
		val = val[1:]
	}
	switch string(name) {
	case "event":
		f.Event = string(val)
		return true
	case "data":
		*data = append(*data, append([]byte(nil), val...))
		return true
	case "id":
		f.ID = string(val)
		return false
	}
	return false
}
