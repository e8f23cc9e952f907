package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/tidwall/gjson"
)

const readChunkSize = 4096

// MaxFrameSize bounds the bytes buffered for a single incomplete frame.
const MaxFrameSize = 16 << 20

// Decoder splits a server-sent event stream into frame payloads. A frame ends
// at a blank line ("\n\n" or "\r\n\r\n"); bytes after the last boundary are kept
// until more input arrives. The decoder holds no reference to earlier frames.
type Decoder struct {
	r     io.Reader
	buf   []byte
	chunk []byte
	eof   bool
	// scan is where the next boundary search resumes in buf.
	scan     int
	maxFrame int
	err      error
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, chunk: make([]byte, readChunkSize), maxFrame: MaxFrameSize}
}

// Next returns the data payload of the next frame. Multiple data lines are
// joined with "\n". Comments and event, id and retry fields are ignored, and
// frames without data are skipped. A frame holding unknown lines and no data
// yields an *EventDataError; the decoder stays usable afterwards.
// Next returns io.EOF once the stream ends cleanly. A final frame without a
// terminating blank line is still returned. A frame larger than MaxFrameSize
// fails the decoder for good.
func (d *Decoder) Next() ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	for {
		if frame, ok := d.cutFrame(); ok {
			payload, hasData, err := parseFrame(frame)
			if err != nil {
				return nil, err
			}
			if hasData {
				return payload, nil
			}
			continue
		}
		if d.eof {
			if len(bytes.TrimSpace(d.buf)) == 0 {
				d.buf = nil
				return nil, io.EOF
			}
			frame := d.buf
			d.buf = nil
			payload, hasData, err := parseFrame(frame)
			if err != nil {
				return nil, err
			}
			if hasData {
				return payload, nil
			}
			return nil, io.EOF
		}
		if len(d.buf) > d.maxFrame {
			d.buf = nil
			d.err = fmt.Errorf("%w: frame exceeds %d bytes", ErrInvalidEventData, d.maxFrame)
			return nil, d.err
		}
		n, err := d.r.Read(d.chunk)
		d.buf = append(d.buf, d.chunk[:n]...)
		if errors.Is(err, io.EOF) {
			d.eof = true
		} else if err != nil {
			return nil, err
		}
	}
}

// cutFrame removes the first complete frame from the buffer. A blank line is
// "\n" followed by an optional "\r" and another "\n". Bytes already searched
// are not searched again.
func (d *Decoder) cutFrame() ([]byte, bool) {
	for i := d.scan; i < len(d.buf); i++ {
		if d.buf[i] != '\n' {
			continue
		}
		j := i + 1
		if j < len(d.buf) && d.buf[j] == '\r' {
			j++
		}
		if j < len(d.buf) && d.buf[j] == '\n' {
			frame := d.buf[:i]
			d.buf = d.buf[j+1:]
			d.scan = 0
			return frame, true
		}
	}
	// A boundary may start in the last two bytes and finish in the next read.
	d.scan = max(len(d.buf)-2, 0)
	return nil, false
}

func parseFrame(frame []byte) (payload []byte, hasData bool, err error) {
	var data [][]byte
	unknown := false
	for line := range bytes.SplitSeq(frame, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 || line[0] == ':' {
			continue
		}
		field, value, _ := bytes.Cut(line, []byte(":"))
		value = bytes.TrimPrefix(value, []byte(" "))
		switch string(field) {
		case "data":
			data = append(data, value)
		case "event", "id", "retry":
		default:
			unknown = true
		}
	}
	if len(data) == 0 {
		if unknown {
			return nil, false, &EventDataError{Data: string(frame)}
		}
		return nil, false, nil
	}
	return bytes.Join(data, []byte("\n")), true, nil
}

// DecodeEvents yields the answer fragments carried by an event stream. body is
// closed when the sequence ends, whether it ran to completion or the consumer
// stopped early. An error envelope in a frame is yielded as *APIError.
func DecodeEvents(ctx context.Context, body io.ReadCloser) iter.Seq2[*GenerateContentResponse, error] {
	return func(yield func(*GenerateContentResponse, error) bool) {
		defer body.Close()
		dec := NewDecoder(body)
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, newTransportError("read stream", err))
				return
			}
			payload, err := dec.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				var ede *EventDataError
				if errors.As(err, &ede) {
					if !yield(nil, err) {
						return
					}
					continue
				}
				yield(nil, newTransportError("read stream", err))
				return
			}
			frag, err := decodeFragment(payload)
			if !yield(frag, err) {
				return
			}
		}
	}
}

func decodeFragment(payload []byte) (*GenerateContentResponse, error) {
	if errObj := gjson.GetBytes(payload, "error"); errObj.Exists() && errObj.IsObject() {
		status := int(errObj.Get("code").Int())
		return nil, parseAPIError(status, payload)
	}
	var frag GenerateContentResponse
	if err := json.Unmarshal(payload, &frag); err != nil {
		return nil, &EventDataError{Data: string(payload), Err: err}
	}
	return &frag, nil
}
