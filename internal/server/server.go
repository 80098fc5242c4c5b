// Package server exposes an engine over HTTP.
//
// GET / decodes the query string: query= runs once and answers with one JSON
// result, subscription= answers with a server-sent event stream carrying one
// frame per result. POST / runs a JSON request once. /ws carries operations
// over a websocket.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	engine "github.com/hanpama/gqlstream/internal/engine"
	eventbus "github.com/hanpama/gqlstream/internal/eventbus"
	events "github.com/hanpama/gqlstream/internal/events"
	executor "github.com/hanpama/gqlstream/internal/executor"
	reqid "github.com/hanpama/gqlstream/internal/reqid"
	request "github.com/hanpama/gqlstream/internal/request"
	shutdown "github.com/hanpama/gqlstream/internal/shutdown"
	sse "github.com/hanpama/gqlstream/internal/sse"
)

// Handler is an http.Handler serving the GraphQL endpoints.
type Handler struct {
	engine   *engine.Engine
	shutdown *shutdown.Broadcaster
	opt      Options
}

type Options struct {
	// Timeout bounds single-shot executions when the incoming request
	// context has no deadline. Streams are not bounded. 0 means no timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of POST bodies. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// Playground serves the GraphQL Playground on /playground, and on / for
	// browsers that send no operation.
	Playground bool

	// KeepAlive is the idle interval after which streams send a keep-alive.
	// 0 disables keep-alives.
	KeepAlive time.Duration

	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option       { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                       { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option          { return func(o *Options) { o.MaxBodyBytes = n } }
func WithPlayground(enable bool) Option        { return func(o *Options) { o.Playground = enable } }
func WithKeepAlive(d time.Duration) Option     { return func(o *Options) { o.KeepAlive = d } }
func WithMetricsHandler(h http.Handler) Option { return func(o *Options) { o.Metrics = h } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New returns a Handler running operations on e. Streams end when b fires.
func New(e *engine.Engine, b *shutdown.Broadcaster, opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second, Playground: true}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{engine: e, shutdown: b, opt: op}
}

func (h *Handler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx, rid := reqid.FromRequest(r)
	r = r.WithContext(ctx)
	rw.Header().Set(reqid.Header, rid)

	w := &statusWriter{ResponseWriter: rw}
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: w.Status(), Duration: time.Since(start)})
	}()

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch r.URL.Path {
	case "/":
		h.serveGraphQL(w, r)
	case "/playground":
		if !h.opt.Playground || r.Method != http.MethodGet {
			h.writeError(w, http.StatusNotFound, "not found")
			return
		}
		h.servePlayground(w)
	case "/ws":
		h.serveWebSocket(w, r)
	case "/healthz":
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case "/metrics":
		if h.opt.Metrics == nil {
			h.writeError(w, http.StatusNotFound, "not found")
			return
		}
		h.opt.Metrics.ServeHTTP(w, r)
	default:
		h.writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) serveGraphQL(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.serveGet(w, r)
	case http.MethodPost:
		h.servePost(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// serveGet dispatches a decoded GET request: a query is executed once, a
// subscription is streamed as server-sent events.
func (h *Handler) serveGet(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	if h.opt.Playground && !values.Has("query") && !values.Has("subscription") && acceptsHTML(r.Header.Get("Accept")) {
		h.servePlayground(w)
		return
	}

	op, err := request.Decode(values)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if op.IsQuery() {
		h.writeJSON(w, http.StatusOK, h.execute(r.Context(), op.Request()))
		return
	}
	h.stream(w, r, op.Request())
}

func (h *Handler) servePost(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		h.writeError(w, http.StatusBadRequest, "unsupported Content-Type")
		return
	}
	body := r.Body
	if h.opt.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.opt.MaxBodyBytes)
	}
	defer body.Close()

	req, err := request.DecodeJSON(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, h.execute(r.Context(), req))
}

func (h *Handler) execute(ctx context.Context, req engine.Request) *executor.ExecutionResult {
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}
	return h.engine.Execute(ctx, req)
}

// stream runs req as a stream and writes each result as one event frame
// until the stream ends, shutdown fires, or the client goes away.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, req engine.Request) {
	ctx := r.Context()
	sw, err := sse.NewWriter(w)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	adapter := sse.NewAdapter(h.engine.ExecuteStream(ctx, req), h.shutdown, sse.WithKeepAlive(h.opt.KeepAlive))
	eventbus.Publish(ctx, events.SubscriptionStart{
		ID:            adapter.ID(),
		Transport:     events.TransportSSE,
		Query:         req.Query,
		OperationName: req.OperationName,
	})
	// failures are reported through SubscriptionFinish; the response is
	// already committed
	_, _ = adapter.Run(ctx, sw)
}

// ------------------ Response formatting ------------------

func errorResult(message string) *executor.ExecutionResult {
	return &executor.ExecutionResult{Errors: []executor.GraphQLError{{Message: message}}}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResult(message))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := h.marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = h.marshal(errorResult("cannot serialize result: " + err.Error()))
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func (h *Handler) marshal(v any) ([]byte, error) {
	if h.opt.Pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func acceptsHTML(accept string) bool {
	for _, p := range strings.Split(accept, ",") {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "text/html") {
			return true
		}
	}
	return false
}

// statusWriter records the response status for HTTPFinish.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

func (w *statusWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *statusWriter) Flush() {
	_ = http.NewResponseController(w.ResponseWriter).Flush()
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if w.status == 0 {
		w.status = http.StatusSwitchingProtocols
	}
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
