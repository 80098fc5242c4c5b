package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is one dispatched server-sent event.
type Event struct {
	Event string
	Data  string
	ID    string
}

// Reader parses a text/event-stream body. Comments and events without data
// are skipped.
type Reader struct {
	scanner *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &Reader{scanner: s}
}

// Next returns the next event. It returns io.EOF when the stream ends; a
// partial event at the end of the stream is dropped.
func (r *Reader) Next() (Event, error) {
	var ev Event
	var data []string
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if data == nil {
				ev = Event{}
				continue
			}
			ev.Data = strings.Join(data, "\n")
			if ev.Event == "" {
				ev.Event = "message"
			}
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Event = value
		case "data":
			data = append(data, value)
		case "id":
			ev.ID = value
		}
	}
	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}
