// Command ircbridged is the process entrypoint: it loads configuration,
// wires the process-wide shared resources (event broker, operator cache,
// ident registry, IPv6 allocator, outbound socket limiter), connects one
// Bridged Client per configured server, and runs until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bridgehub/ircbridge/bridgedclient"
	"github.com/bridgehub/ircbridge/config"
	"github.com/bridgehub/ircbridge/eventbroker"
	"github.com/bridgehub/ircbridge/identity"
	"github.com/bridgehub/ircbridge/ircconn"
	"github.com/bridgehub/ircbridge/opcache"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ircbridged: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := setupLogger("info", "json")

	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger = setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded", slog.String("path", cfgPath), slog.Int("servers", len(cfg.Servers)))

	broker, err := newBroker(cfg, logger)
	if err != nil {
		return fmt.Errorf("wiring event broker: %w", err)
	}

	opStore := newOperatorStore(cfg, logger)

	identGen := identity.NewDefaultGenerator()
	ipv6Alloc := identity.NewIPv6Allocator()
	identRegistry := identity.NewRegistry()
	socketLimiter := ircconn.NewSocketLimiter(cfg.MaxOutboundConnsOrDefault(1000))

	clients := make([]*bridgedclient.Client, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		desc, err := cfg.ServerDescriptor(name)
		if err != nil {
			return fmt.Errorf("server %q: %w", name, err)
		}

		homeUserID := os.Getenv("IRCBRIDGE_" + envName(name) + "_USERID")
		if homeUserID == "" {
			homeUserID = "demo-user"
		}

		client := bridgedclient.New(
			desc,
			bridgedclient.ClientConfig{Password: desc.DefaultPassword},
			homeUserID, homeUserID, false,
			broker, identGen, ipv6Alloc, identRegistry, socketLimiter, opStore,
			logger.With(slog.String("server", name)),
		)

		if err := client.Connect(); err != nil {
			logger.Error("connect failed", slog.String("server", name), slog.String("error", err.Error()))
			continue
		}
		clients = append(clients, client)
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdownCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds())*time.Second)
	defer cancel()

	for _, client := range clients {
		if err := client.Disconnect("bridge shutting down"); err != nil {
			logger.Warn("disconnect error", slog.String("error", err.Error()))
		}
	}
	if err := broker.Close(ctx); err != nil {
		logger.Warn("broker close error", slog.String("error", err.Error()))
	}

	logger.Info("ircbridged stopped")
	return nil
}

func newBroker(cfg *config.Config, logger *slog.Logger) (eventbroker.Broker, error) {
	if cfg.Bridge.NATSURL == "" {
		return eventbroker.NewInProcess(logger, 1000), nil
	}
	return eventbroker.NewNATS(cfg.Bridge.NATSURL, logger)
}

func newOperatorStore(cfg *config.Config, logger *slog.Logger) opcache.Store {
	if cfg.Bridge.RedisURL == "" {
		return opcache.NewInProcess()
	}
	opts, err := redis.ParseURL(cfg.Bridge.RedisURL)
	if err != nil {
		logger.Warn("invalid redis_url, falling back to in-process operator cache", slog.String("error", err.Error()))
		return opcache.NewInProcess()
	}
	return opcache.NewRedis(redis.NewClient(opts), "ircbridge:opcache:")
}

func configPath() string {
	if p := os.Getenv("IRCBRIDGE_CONFIG_PATH"); p != "" {
		return p
	}
	return "ircbridge.toml"
}

func envName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
