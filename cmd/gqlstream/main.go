package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	config "github.com/hanpama/gqlstream/internal/config"
	engine "github.com/hanpama/gqlstream/internal/engine"
	eventbus "github.com/hanpama/gqlstream/internal/eventbus"
	example "github.com/hanpama/gqlstream/internal/example"
	logging "github.com/hanpama/gqlstream/internal/logging"
	metrics "github.com/hanpama/gqlstream/internal/metrics"
	otel "github.com/hanpama/gqlstream/internal/otel"
	resolver "github.com/hanpama/gqlstream/internal/resolver"
	server "github.com/hanpama/gqlstream/internal/server"
	shutdown "github.com/hanpama/gqlstream/internal/shutdown"
	sse "github.com/hanpama/gqlstream/internal/sse"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gqlstream",
		Short:        "GraphQL over HTTP with server-sent event subscriptions",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newSchemaCmd(), newListenCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the GraphQL HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the schema in SDL form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEngine(config.Default())
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), e.SDL())
			return err
		},
	}
}

func newListenCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "listen [subscription]",
		Short: "Print the events of a subscription served over server-sent events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := "{interval}"
			if len(args) == 1 {
				body = args[0]
			}
			return listen(cmd.Context(), addr, body, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "Server base URL")
	return cmd
}

func newEngine(cfg config.Config) (*engine.Engine, error) {
	rt := example.Register(resolver.New(), cfg.Example.Interval)
	e, err := engine.New(example.SDL, rt,
		engine.WithIntrospection(cfg.GraphQL.Introspection),
		engine.WithParallelism(cfg.GraphQL.Parallelism),
	)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	return e, nil
}

func serve(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := logging.Setup(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}

	eventbus.Use(eventbus.New())
	defer logging.Subscribe(logger)()

	stopTracing, err := otel.Setup(cfg.Otel.Endpoint, cfg.Otel.Service)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = stopTracing(context.Background()) }()

	e, err := newEngine(*cfg)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithTimeout(cfg.Server.Timeout),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithPlayground(cfg.Server.Playground),
		server.WithKeepAlive(cfg.Server.KeepAlive),
	}
	if cfg.Server.Pretty {
		opts = append(opts, server.WithPretty())
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		opts = append(opts, server.WithCORS(cfg.Server.CORSOrigins...))
	}
	if cfg.Metrics.Enabled {
		m := metrics.New()
		defer m.Subscribe()()
		opts = append(opts, server.WithMetricsHandler(m.Handler()))
	}

	broadcaster := shutdown.New()
	stopSignals := broadcaster.Notify(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	srv := &http.Server{
		Handler:           server.New(e, broadcaster, opts...),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	printBanner(out, ln.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			broadcaster.Fire()
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-broadcaster.Done():
		case <-gctx.Done():
			broadcaster.Fire()
		}
		slog.Info("shutting down", "open_streams", broadcaster.Waiters())
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		// websocket connections are hijacked and not tracked by Shutdown
		if err := broadcaster.Wait(sctx); err != nil {
			slog.Warn("streams still open after shutdown timeout", "open_streams", broadcaster.Waiters())
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

func printBanner(out io.Writer, addr net.Addr) {
	base := "http://" + addr.String()
	if tcp, ok := addr.(*net.TCPAddr); ok && (tcp.IP.IsLoopback() || tcp.IP.IsUnspecified()) {
		base = fmt.Sprintf("http://localhost:%d", tcp.Port)
	}
	fmt.Fprintf(out, "Playground: %s/playground\n", base)
	fmt.Fprintf(out, "Open in browser: %s/?query={firstName}\n", base)
}

// listen subscribes to body on the server at base and prints every event until
// the stream ends or ctx is done.
func listen(ctx context.Context, base, body string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	u.Path = "/"
	u.RawQuery = url.Values{"subscription": {body}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, msg)
	}

	r := sse.NewReader(resp.Body)
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fmt.Fprintf(out, "received: %s: %s\n", ev.Event, ev.Data)
	}
}
