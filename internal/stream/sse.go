package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/TemirB/orderfeed/internal/domain"
)

const keepAliveComment = "keep-alive"

// WriteEvent writes ev as one text/event-stream frame.
func WriteEvent(w io.Writer, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

// WriteComment writes an unlabeled comment line, used for keep-alives.
func WriteComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	return err
}

// Frame is one dispatched unit of an event stream. Comment frames carry no
// event; they still prove the connection is alive.
type Frame struct {
	Event   string
	Data    []byte
	Comment bool
}

// Decoder reads frames from a text/event-stream body.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next blocks until a full frame is read. It returns io.EOF when the stream
// ends cleanly between frames.
func (d *Decoder) Next() (Frame, error) {
	var (
		f       Frame
		data    bytes.Buffer
		hasData bool
		started bool
	)
	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && started {
				return Frame{}, io.ErrUnexpectedEOF
			}
			return Frame{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !started {
				continue
			}
			if hasData {
				f.Data = data.Bytes()
			}
			if f.Event == "" && hasData {
				f.Event = "message"
			}
			return f, nil
		}
		started = true

		if strings.HasPrefix(line, ":") {
			f.Comment = true
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.Event = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		}
	}
}
