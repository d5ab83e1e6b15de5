package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"moff.io/wallet-bridge/internal/appkit"
	"moff.io/wallet-bridge/internal/bridge"
	"moff.io/wallet-bridge/internal/config"
	"moff.io/wallet-bridge/internal/databus"
	"moff.io/wallet-bridge/internal/http"
	"moff.io/wallet-bridge/internal/onramp"
	"moff.io/wallet-bridge/internal/starter"
	"moff.io/wallet-bridge/internal/storage"
	"moff.io/wallet-bridge/internal/transport"
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
)

func main() {
	log.Infof("Starting wallet bridge")
	startApp()
}

func startApp() {
	defer func() {
		if i := recover(); i != nil {
			log.Fatal(errors.ErrorfAndReport("%v", i))
		}
	}()
	config.Read()
	conf := config.Global
	log.SetLevel(conf.LogLevel)

	if err := errors.NewSentryReporter(conf.Reporting.SentryDSN); err != nil {
		log.Warnf("sentry reporter:%v", err)
	}
	errors.NewLarkReporter(conf.Reporting.LarkWebhook, conf.Reporting.LarkSilent)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, conf.Storage)
	if err != nil {
		log.Fatal(err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}
	publisher, err := databus.New(conf.DataBus)
	if err != nil {
		log.Fatal(err)
	}
	defer publisher.Close()

	hub := bridge.NewHub(conf.Bridge, publisher)
	selector := transport.NewSelector(nil)
	kit, err := appkit.New(hub,
		appkit.WithSelector(selector),
		appkit.WithPublisher(publisher),
		appkit.WithStorage(store),
		appkit.WithDelays(conf.AppKit.OpenDelay, conf.AppKit.PopupDelay),
		appkit.WithOnRamp(onramp.Builder{BaseURL: conf.OnRamp.BaseURL, PublicKey: conf.OnRamp.PublicKey}),
		appkit.WithFocusWaiter(appkit.NewPollingFocusWaiter(hub, conf.AppKit.FocusPollInterval)),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer starter.Stop(hub, kit)

	starter.Start(ctx, conf, hub, appkit.NewBootstrap(kit))

	var serverOpts []http.ServerOption
	if conf.HTTP.OnRampPerMinute > 0 {
		if rds, ok := store.(*storage.Redis); ok {
			serverOpts = append(serverOpts, http.WithOnRampLimiter(http.NewRedisLimiter(rds.Client(), conf.HTTP.OnRampPerMinute)))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return http.NewServer(conf.HTTP, kit, hub, selector, serverOpts...).Run(gctx)
	})
	if err := g.Wait(); err != nil {
		log.Error(err)
	}
	log.Info("wallet bridge stopped")
}
