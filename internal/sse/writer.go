package sse

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// Writer writes server-sent event frames to an HTTP response, flushing after
// every frame.
type Writer struct {
	w  io.Writer
	rc *http.ResponseController
}

// NewWriter sets the event-stream response headers, sends them, and returns
// a Writer for the body.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sw := &Writer{w: w, rc: http.NewResponseController(w)}
	if err := sw.rc.Flush(); err != nil {
		return nil, fmt.Errorf("sse: response cannot be flushed: %w", err)
	}
	return sw, nil
}

// Message writes one "message" event whose data is payload. payload must
// not contain newlines.
func (w *Writer) Message(payload []byte) error {
	var buf bytes.Buffer
	buf.Grow(len(payload) + 24)
	buf.WriteString("event: message\ndata: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return w.write(buf.Bytes())
}

// Comment writes a comment line. Clients ignore comments; they keep idle
// connections open through proxies.
func (w *Writer) Comment(text string) error {
	return w.write([]byte(": " + text + "\n\n"))
}

func (w *Writer) write(p []byte) error {
	if _, err := w.w.Write(p); err != nil {
		return err
	}
	return w.rc.Flush()
}
