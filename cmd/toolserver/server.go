package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/mcp"
	"github.com/effective-security/toolagent/mcp/transport"
	"github.com/effective-security/toolagent/mcp/transport/httptransport"
	"github.com/effective-security/toolagent/mcp/transport/stdio"
	"github.com/effective-security/toolagent/store"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/toolagent/tools/calculator"
	"github.com/effective-security/toolagent/tools/clock"
	"github.com/effective-security/toolagent/tools/counter"
	"github.com/effective-security/toolagent/tools/kvstore"
	"github.com/effective-security/toolagent/tools/tavily"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent/cmd", "toolserver")

const (
	serverName    = "toolagent-demo"
	serverVersion = "0.1.0"
	redisPrefix   = "toolagent"
)

type config struct {
	Transport string
	Addr      string
	Endpoint  string
	RedisURL  string
	TavilyKey string
	Debug     bool
}

func parseFlags(args []string, stderr io.Writer) (*config, error) {
	cfg := &config{}
	fs := flag.NewFlagSet("toolserver", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Transport, "transport", mcp.TransportStdio, "transport: stdio or http")
	fs.StringVar(&cfg.Addr, "addr", ":8080", "listen address of the http transport")
	fs.StringVar(&cfg.Endpoint, "endpoint", "/mcp", "path of the http endpoint")
	fs.StringVar(&cfg.RedisURL, "redis", os.Getenv("TOOLSERVER_REDIS_URL"), "redis URL for shared counter and kv state, in-memory when empty")
	fs.StringVar(&cfg.TavilyKey, "tavily-key", os.Getenv("TAVILY_API_KEY"), "Tavily API key, web_search is disabled when empty")
	fs.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, errors.Mark(err, chatmodel.ErrConfiguration)
	}
	if cfg.Transport != mcp.TransportStdio && cfg.Transport != mcp.TransportHTTP {
		return nil, chatmodel.NewConfigurationError("unsupported transport %q", cfg.Transport)
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	// stdout carries the protocol in stdio mode
	xlog.SetFormatter(xlog.NewStringFormatter(stderr))
	if cfg.Debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.INFO)
	}

	return serve(ctx, cfg, stdin, stdout)
}

func serve(ctx context.Context, cfg *config, stdin io.Reader, stdout io.Writer) error {
	registry, closeStore, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var (
		tr   transport.Transport
		done <-chan struct{}
	)
	switch cfg.Transport {
	case mcp.TransportHTTP:
		tr = httptransport.NewHTTPTransport(cfg.Endpoint).WithAddr(cfg.Addr)
	default:
		st := stdio.New(stdin, stdout)
		done = st.Done()
		tr = st
	}

	srv := mcp.NewServer(tr, registry,
		mcp.WithServerInfo(serverName, serverVersion),
		mcp.WithInstructions("Demo tools: arithmetic, unit conversion, time, a shared counter and a key-value store."),
	)
	if err = srv.Serve(); err != nil {
		return errors.WithMessage(err, "unable to start server")
	}
	logger.KV(xlog.INFO,
		"status", "serving",
		"transport", cfg.Transport,
		"tools", registry.Names(),
	)

	select {
	case <-ctx.Done():
	case <-done:
	}

	logger.KV(xlog.INFO, "status", "stopping")
	return srv.Close()
}

// buildRegistry returns the demo tools. Counter and kv state live in redis
// when configured, so that several server processes share them.
func buildRegistry(cfg *config) (*tools.Registry, func(), error) {
	var (
		c       store.Counter
		kv      store.KV
		closeFn = func() {}
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, errors.Mark(errors.Wrap(err, "invalid redis URL"), chatmodel.ErrConfiguration)
		}
		client := redis.NewClient(opts)
		c = store.NewRedisCounter(client, redisPrefix, "counter")
		kv = store.NewRedisKV(client, redisPrefix, "kv")
		closeFn = func() { _ = client.Close() }
	} else {
		c = store.NewMemoryCounter()
		kv = store.NewMemoryKV()
	}

	list := []tools.ITool{
		calculator.New(),
		calculator.NewConverter(),
		clock.New(nil),
	}
	list = append(list, counter.New(c)...)
	list = append(list, kvstore.New(kv)...)

	if cfg.TavilyKey != "" {
		search, err := tavily.New(cfg.TavilyKey)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		list = append(list, search)
	}

	registry := tools.NewRegistry(tools.WithStrictRegistration())
	if _, err := registry.Register(list...); err != nil {
		closeFn()
		return nil, nil, err
	}
	return registry, closeFn, nil
}
