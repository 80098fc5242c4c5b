package sse

import (
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReader(t *testing.T) {
	body := ": keep-alive\n\n" +
		"event: message\ndata: {\"data\":1}\n\n" +
		"data: a\ndata: b\nid: 7\n\n" +
		"event: ignored\n\n" +
		"event: message\ndata: partial"

	r := NewReader(strings.NewReader(body))
	var got []Event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		got = append(got, ev)
	}
	want := []Event{
		{Event: "message", Data: `{"data":1}`},
		{Event: "message", Data: "a\nb", ID: "7"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestReaderReadsWriterOutput(t *testing.T) {
	var buf strings.Builder
	for _, p := range []string{`{"n":1}`, `{"n":2}`} {
		buf.WriteString(frame(p))
	}
	r := NewReader(strings.NewReader(buf.String()))
	for _, want := range []string{`{"n":1}`, `{"n":2}`} {
		ev, err := r.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if ev.Data != want {
			t.Fatalf("data = %q, want %q", ev.Data, want)
		}
	}
}
