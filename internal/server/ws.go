package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	engine "github.com/hanpama/gqlstream/internal/engine"
	eventbus "github.com/hanpama/gqlstream/internal/eventbus"
	events "github.com/hanpama/gqlstream/internal/events"
	executor "github.com/hanpama/gqlstream/internal/executor"
	request "github.com/hanpama/gqlstream/internal/request"
	shutdown "github.com/hanpama/gqlstream/internal/shutdown"
	sse "github.com/hanpama/gqlstream/internal/sse"
)

// Websocket subprotocols.
const (
	protocolTransportWS = "graphql-transport-ws"
	protocolGraphQLWS   = "graphql-ws"
)

// Message types of both subprotocols.
const (
	msgConnectionInit      = "connection_init"
	msgConnectionAck       = "connection_ack"
	msgConnectionTerminate = "connection_terminate"
	msgKeepAlive           = "ka"
	msgPing                = "ping"
	msgPong                = "pong"
	msgSubscribe           = "subscribe"
	msgStart               = "start"
	msgNext                = "next"
	msgData                = "data"
	msgError               = "error"
	msgComplete            = "complete"
	msgStop                = "stop"
)

// Close codes of graphql-transport-ws.
const (
	closeInvalidMessage   = 4400
	closeUnauthorized     = 4401
	closeSubscriberExists = 4409
	closeTooManyInits     = 4429
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	Subprotocols:    []string{protocolTransportWS, protocolGraphQLWS},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origins are checked by the CORS settings, not here
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsOp struct {
	cancel context.CancelFunc
}

type wsFrame struct {
	messageType int
	data        []byte
}

// wsConn serves the operations of one websocket connection.
type wsConn struct {
	h        *Handler
	conn     *websocket.Conn
	protocol string
	waiter   *shutdown.Waiter

	ctx    context.Context
	cancel context.CancelFunc
	send   chan wsFrame

	mu          sync.Mutex
	initialized bool
	ops         map[string]*wsOp
	wg          sync.WaitGroup
}

func (h *Handler) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		h.writeError(w, http.StatusBadRequest, "websocket upgrade required")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied
		return
	}
	protocol := conn.Subprotocol()
	if protocol == "" {
		protocol = protocolGraphQLWS
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &wsConn{
		h:        h,
		conn:     conn,
		protocol: protocol,
		waiter:   h.shutdown.Register(),
		ctx:      ctx,
		cancel:   cancel,
		send:     make(chan wsFrame, 16),
		ops:      make(map[string]*wsOp),
	}
	c.serve()
}

func (c *wsConn) serve() {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()
	go func() {
		select {
		case <-c.waiter.Done():
			c.closeWith(websocket.CloseGoingAway, "server shutting down")
		case <-c.ctx.Done():
		}
	}()

	c.readPump()

	c.cancel()
	c.wg.Wait()
	c.waiter.Release()
	<-writerDone
	c.conn.Close()
}

// readPump handles client messages until the connection fails or closes.
func (c *wsConn) readPump() {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.closeWith(closeInvalidMessage, "invalid message")
			return
		}
		if !c.handle(msg) {
			return
		}
	}
}

// handle processes one client message and reports whether to keep reading.
func (c *wsConn) handle(msg wsMessage) bool {
	switch msg.Type {
	case msgConnectionInit:
		c.mu.Lock()
		again := c.initialized
		c.initialized = true
		c.mu.Unlock()
		if again && c.protocol == protocolTransportWS {
			c.closeWith(closeTooManyInits, "too many initialisation requests")
			return false
		}
		c.write(wsMessage{Type: msgConnectionAck})
		if c.protocol == protocolGraphQLWS && c.h.opt.KeepAlive > 0 {
			c.write(wsMessage{Type: msgKeepAlive})
		}
	case msgPing:
		c.write(wsMessage{Type: msgPong, Payload: msg.Payload})
	case msgPong:
	case msgSubscribe, msgStart:
		c.mu.Lock()
		initialized := c.initialized
		_, exists := c.ops[msg.ID]
		c.mu.Unlock()
		if !initialized && c.protocol == protocolTransportWS {
			c.closeWith(closeUnauthorized, "unauthorized")
			return false
		}
		if exists && c.protocol == protocolTransportWS {
			c.closeWith(closeSubscriberExists, fmt.Sprintf("subscriber for %s already exists", msg.ID))
			return false
		}
		req, err := request.DecodeJSON(bytes.NewReader(msg.Payload))
		if err != nil {
			c.writeErrors(msg.ID, []executor.GraphQLError{{Message: err.Error()}})
			return true
		}
		c.start(msg.ID, req)
	case msgComplete, msgStop:
		c.stop(msg.ID)
	case msgConnectionTerminate:
		c.closeWith(websocket.CloseNormalClosure, "")
		return false
	default:
		if c.protocol == protocolTransportWS {
			c.closeWith(closeInvalidMessage, fmt.Sprintf("unexpected message type %q", msg.Type))
			return false
		}
	}
	return true
}

// start runs one operation until its stream ends or it is stopped.
func (c *wsConn) start(id string, req engine.Request) {
	ctx, cancel := context.WithCancel(c.ctx)
	op := &wsOp{cancel: cancel}
	c.mu.Lock()
	if prev, ok := c.ops[id]; ok {
		prev.cancel()
	}
	c.ops[id] = op
	c.mu.Unlock()

	subID := uuid.NewString()
	eventbus.Publish(ctx, events.SubscriptionStart{
		ID:            subID,
		Transport:     events.TransportWebSocket,
		Query:         req.Query,
		OperationName: req.OperationName,
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		started := time.Now()
		stream := c.h.engine.ExecuteStream(ctx, req)
		state, frames, err := c.pump(ctx, id, subID, stream)
		stream.Close()
		c.forget(id, op)
		eventbus.Publish(ctx, events.SubscriptionFinish{
			ID:        subID,
			Transport: events.TransportWebSocket,
			State:     state.String(),
			Frames:    frames,
			Err:       err,
			Duration:  time.Since(started),
		})
	}()
}

func (c *wsConn) pump(ctx context.Context, id, subID string, stream *executor.ResponseStream) (sse.State, int, error) {
	frames := 0
	for {
		select {
		case <-c.waiter.Done():
			return sse.Aborted, frames, nil
		case <-ctx.Done():
			return sse.Aborted, frames, nil
		case res, ok := <-stream.Results():
			if !ok {
				c.write(wsMessage{ID: id, Type: msgComplete})
				return sse.Drained, frames, nil
			}
			if res.Data == nil && res.HasErrors() {
				c.writeErrors(id, res.Errors)
				return sse.Drained, frames, nil
			}
			payload, err := json.Marshal(res)
			if err != nil {
				c.writeErrors(id, []executor.GraphQLError{{Message: "cannot serialize result"}})
				return sse.Failed, frames, fmt.Errorf("%w: %v", sse.ErrSerialization, err)
			}
			typ := msgNext
			if c.protocol == protocolGraphQLWS {
				typ = msgData
			}
			if !c.write(wsMessage{ID: id, Type: typ, Payload: payload}) {
				return sse.Aborted, frames, nil
			}
			frames++
			eventbus.Publish(ctx, events.SubscriptionFrame{ID: subID, Transport: events.TransportWebSocket})
		}
	}
}

func (c *wsConn) stop(id string) {
	c.mu.Lock()
	op, ok := c.ops[id]
	delete(c.ops, id)
	c.mu.Unlock()
	if ok {
		op.cancel()
	}
}

// forget removes id unless it was replaced by a newer operation.
func (c *wsConn) forget(id string, op *wsOp) {
	c.mu.Lock()
	if c.ops[id] == op {
		delete(c.ops, id)
	}
	c.mu.Unlock()
	op.cancel()
}

func (c *wsConn) writeErrors(id string, errs []executor.GraphQLError) {
	var payload []byte
	if c.protocol == protocolGraphQLWS {
		payload, _ = json.Marshal(errs[0])
	} else {
		payload, _ = json.Marshal(errs)
	}
	c.write(wsMessage{ID: id, Type: msgError, Payload: payload})
}

// write queues msg for the write pump. It reports false once the connection
// is shutting down.
func (c *wsConn) write(msg wsMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	select {
	case c.send <- wsFrame{messageType: websocket.TextMessage, data: data}:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// closeWith sends a close frame; the read pump then ends.
func (c *wsConn) closeWith(code int, reason string) {
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	_ = c.conn.SetReadDeadline(time.Now().Add(writeWait))
}

// writePump owns all data writes to the connection.
func (c *wsConn) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	var ka <-chan time.Time
	if c.protocol == protocolGraphQLWS && c.h.opt.KeepAlive > 0 {
		t := time.NewTicker(c.h.opt.KeepAlive)
		defer t.Stop()
		ka = t.C
	}
	kaFrame, _ := json.Marshal(wsMessage{Type: msgKeepAlive})

	for {
		select {
		case <-c.ctx.Done():
			return
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(f.messageType, f.data); err != nil {
				c.cancel()
				return
			}
		case <-ka:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, kaFrame); err != nil {
				c.cancel()
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.cancel()
				return
			}
		}
	}
}
