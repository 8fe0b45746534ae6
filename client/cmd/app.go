package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/adwski/scribble-client/client/connection"
	"github.com/adwski/scribble-client/client/metrics"
	"github.com/adwski/scribble-client/client/protocol"
	httpServer "github.com/adwski/scribble-client/client/server/http"
	"github.com/adwski/scribble-client/client/session"
	"github.com/adwski/scribble-client/client/storage/memory"
	"github.com/adwski/scribble-client/client/stroke"
	"github.com/adwski/scribble-client/client/transport/websocket"
	"github.com/adwski/scribble-client/client/ui/console"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	_ = godotenv.Load()

	// Stdout belongs to the console UI.
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		serverURL   = fs.StringP("server-url", "s", "", "game server websocket url, overrides host and port")
		host        = fs.StringP("host", "H", getEnv("SCRIBBLE_HOST", "localhost"), "game server host")
		port        = fs.StringP("port", "p", getEnv("SCRIBBLE_PORT", "8081"), "game server port")
		username    = fs.StringP("username", "u", getEnv("SCRIBBLE_USERNAME", ""), "player name")
		metricsAddr = fs.StringP("metrics-addr", "m", "", "diagnostics listen address, empty disables")
		logLevel    = fs.StringP("log-level", "l", getEnv("SCRIBBLE_LOG_LEVEL", "warn"), "log level")
		heartbeat   = fs.Duration("heartbeat", 10*time.Second, "keep-alive interval, the server is dropped after two silent intervals")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	if *heartbeat <= 0 {
		logger.Fatal().Dur("heartbeat", *heartbeat).Msg("heartbeat interval must be positive")
	}

	url := *serverURL
	if url == "" {
		url = "ws://" + net.JoinHostPort(*host, *port)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(metrics.Config{Registry: registry})

	mgr := connection.NewManager(connection.Config{
		Logger:  &logger,
		Metrics: m,
		Dial: connection.WebsocketDialer(websocket.NewDialer(websocket.Config{
			Logger:      &logger,
			ReadTimeout: 2 * *heartbeat,
		})),
		HeartbeatInterval: *heartbeat,
	})
	sink := console.NewSink(os.Stdout)
	sess := session.New(session.Config{
		Logger:   &logger,
		Conn:     mgr,
		UI:       sink,
		Roster:   memory.NewRoster(),
		Username: *username,
	})
	strokes := stroke.NewSynchronizer(stroke.Config{
		Logger:   &logger,
		Metrics:  m,
		Canvas:   sink,
		Sender:   mgr,
		Identity: sess,
	})
	sess.BindBoard(strokes)

	b := protocol.NewBuilder()
	mgr.RegisterRoutes(b)
	sess.RegisterRoutes(b)
	strokes.RegisterRoutes(b)
	router := b.Build(protocol.Config{Logger: &logger, Metrics: m})
	mgr.Bind(func(frame []byte) { router.Dispatch(frame) }, sess)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 1)
	)
	if *metricsAddr != "" {
		diag := httpServer.NewServer(httpServer.Config{
			Logger:     &logger,
			Session:    sess,
			Gatherer:   registry,
			ListenAddr: *metricsAddr,
		})
		wg.Add(1)
		go diag.Run(ctx, wg, errc)
	}

	if err = sess.Connect(ctx, url); err != nil {
		logger.Error().Err(err).Str("url", url).Msg("initial connection failed, use /reconnect to retry")
	}

	input := console.NewInput(console.Config{
		Logger:  &logger,
		In:      os.Stdin,
		Sink:    sink,
		Actions: sess,
		Drawer:  strokes,
		OnQuit:  cancel,
	})
	go input.Run(ctx)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}
	cancel()
	sess.Leave()
	wg.Wait()
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
