// Package events holds the payloads published on the eventbus by the HTTP
// surface, the engine and the stream transports.
package events

import (
	"net/http"
	"time"
)

// HTTPStart is published when a request reaches the handler. The publish
// context carries the request id.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish is published when the handler returns. For streamed responses
// that is when the stream has ended.
type HTTPFinish struct {
	Request  *http.Request
	Status   int
	Duration time.Duration
}

// GraphQLStart is published before executing a GraphQL operation.
type GraphQLStart struct {
	Query         string
	OperationName string
	OperationType string
}

// GraphQLFinish is published after executing a GraphQL operation. For a
// subscription it is published once the response stream has been created, not
// when the stream ends; see SubscriptionFinish.
type GraphQLFinish struct {
	Query         string
	OperationName string
	OperationType string
	Errors        []error
	Duration      time.Duration
}

// Subscription transports.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "ws"
)

// SubscriptionStart is published when a subscription stream is opened.
type SubscriptionStart struct {
	ID            string
	Transport     string
	Query         string
	OperationName string
}

// SubscriptionFrame is published after one result has been delivered to the
// client.
type SubscriptionFrame struct {
	ID        string
	Transport string
}

// SubscriptionFinish is published once per stream when it stops, whatever the
// reason. State is the terminal state of the stream ("drained", "aborted" or
// "failed").
type SubscriptionFinish struct {
	ID        string
	Transport string
	State     string
	Frames    int
	Err       error
	Duration  time.Duration
}
