// cmd/plcpoll/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"

	"github.com/tamzrod/plcpoll/internal/config"
	"github.com/tamzrod/plcpoll/internal/pool"
)

// shutdownGrace bounds how long main waits for in-flight drains.
const shutdownGrace = 5 * time.Second

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: plcpoll <config.yaml>")
		os.Exit(2)
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		newLogger(config.DefaultLogLevel).Crit().Err(err).Log("config load failed")
		os.Exit(1)
	}

	log := newLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Crit().Err(err).Log("plcpoll failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logiface.Logger[logiface.Event]) error {
	dial, err := pool.ModbusDialer(cfg.Endpoints, log.Clone().Str("component", "modbus").Logger())
	if err != nil {
		return err
	}

	// A dead PLC fails every poll; keep a handful of lines per minute.
	limiter := catrate.NewLimiter(map[time.Duration]int{
		time.Minute: 3,
		time.Hour:   20,
	})

	p, err := pool.New(dial,
		pool.WithLogger(log.Clone().Str("component", "pool").Logger()),
		pool.WithLogLimiter(limiter),
	)
	if err != nil {
		return err
	}
	defer p.Close()

	rt, err := build(ctx, cfg, p, log)
	if err != nil {
		return err
	}

	log.Info().
		Int("endpoints", len(cfg.Endpoints)).
		Int("connections", p.Len()).
		Log("plcpoll started")

	rt.start(ctx)

	<-ctx.Done()
	log.Info().Log("shutdown requested")

	rt.release(p)

	if !rt.wait(shutdownGrace) {
		log.Warning().Dur("grace", shutdownGrace).Log("shutdown: drains still pending")
	}
	return nil
}

func newLogger(level string) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(os.Stderr),
			stumpy.WithTimeField("time"),
		),
		stumpy.L.WithLevel(parseLevel(level)),
	).Logger()
}

func parseLevel(s string) logiface.Level {
	switch strings.ToLower(s) {
	case "trace":
		return logiface.LevelTrace
	case "debug":
		return logiface.LevelDebug
	case "notice":
		return logiface.LevelNotice
	case "warning":
		return logiface.LevelWarning
	case "error":
		return logiface.LevelError
	case "critical":
		return logiface.LevelCritical
	default:
		return logiface.LevelInformational
	}
}
