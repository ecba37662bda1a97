package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
	"golang.org/x/sync/errgroup"

	"github.com/Juliapixel/projeto-goodwe/pkg/aggregate"
	"github.com/Juliapixel/projeto-goodwe/pkg/controller"
	"github.com/Juliapixel/projeto-goodwe/pkg/ess"
	"github.com/Juliapixel/projeto-goodwe/pkg/log"
	"github.com/Juliapixel/projeto-goodwe/pkg/model"
	"github.com/Juliapixel/projeto-goodwe/pkg/mqtt"
	"github.com/Juliapixel/projeto-goodwe/pkg/plug"
	"github.com/Juliapixel/projeto-goodwe/pkg/server"
	"github.com/Juliapixel/projeto-goodwe/pkg/storage"
)

func main() {
	// init packages
	sys := ess.Configured()
	m := model.Configured()
	p := plug.Configured()
	s := storage.Configured()
	pub := mqtt.Configured()

	override := controller.NewOverride()
	loop := controller.Configured(controller.LoopConfig{
		Override:  override,
		Telemetry: sys,
		Plug:      p,
		Recorder:  s,
		Publisher: pub,
	}, m)

	// init server
	srv := server.Configured(server.Deps{
		System:   sys,
		Engine:   aggregate.NewEngine(sys, m, aggregate.WithClock(sys.Now)),
		Plug:     p,
		Override: override,
		Loop:     loop,
		Storage:  s,
	})

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}
	log.SetDefaultLogLevel(level)
	slog.SetDefault(log.Ctx(context.Background()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	info := sys.Info()
	ctx = log.WithAttrs(ctx, slog.String("ess", info.ID))
	log.Ctx(ctx).DebugContext(ctx, "logger configured", slog.String("level", level.String()))

	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	if err := loop.Restore(ctx, s); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to restore last action", slog.Any("error", err))
	}

	// an unreachable broker keeps retrying in the background
	if err := pub.Connect(ctx); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "mqtt publishing unavailable", slog.Any("error", err))
	}
	defer pub.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		// Run will block until context is canceled or error happens
		return srv.Run(gctx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
