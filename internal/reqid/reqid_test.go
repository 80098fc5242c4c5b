package reqid

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestContextRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background())
	got, ok := FromContext(ctx)
	if !ok || got != id {
		t.Fatalf("expected %q from context, got %q ok=%v", id, got, ok)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("generated id is not a uuid: %v", err)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("unexpected id in empty context")
	}
}

func TestFromRequest(t *testing.T) {
	const incoming = "0b9c2f6e-9d1c-4a43-8a0c-3f2e5d8b7a61"

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set(Header, incoming)
	if _, id := FromRequest(r); id != incoming {
		t.Fatalf("expected incoming id to be kept, got %q", id)
	}

	r.Header.Set(Header, "not-a-uuid")
	if _, id := FromRequest(r); id == "not-a-uuid" {
		t.Fatalf("malformed id was accepted")
	}
}
