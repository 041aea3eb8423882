package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julioberne/mercadosocial/config"
	"github.com/julioberne/mercadosocial/internal/app"
	httpserver "github.com/julioberne/mercadosocial/internal/handlers/http"
	"github.com/julioberne/mercadosocial/internal/logger"
	"github.com/julioberne/mercadosocial/pkg/utils"
)

func main() {
	cfg := config.LoadConfig()
	log := logger.New(cfg.Debug)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("shutting down")
		cancel()
	}()

	log.Info("initializing app", "product_id", cfg.ProductID, "main_currency", cfg.MainCurrency)
	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		log.Error("initializing app failed", "error", err)
		os.Exit(1)
	}

	log.Info("starting event processor")
	go func() {
		if err := application.EventProcessor.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("event processor stopped", "error", err)
		}
	}()

	// Demo traffic: with DEBUG on, fabricate market activity through the
	// real feed so the whole pipeline lights up locally.
	if cfg.Debug {
		go runDemoGenerator(ctx, application)
	}

	httpAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	server := httpserver.NewServer(
		httpAddr, log,
		httpserver.Stores{
			Votes:    application.Votes,
			Offers:   application.Offers,
			Opinions: application.Opinions,
			Product:  application.Product,
			Prices:   application.Prices,
		},
		application.Aggregator,
		application.Rates.Rates,
		application.Broadcaster,
		application.SnapshotCache,
	)

	go func() {
		log.Info("http server listening", "addr", httpAddr)
		if err := server.Start(); err != nil && ctx.Err() == nil {
			log.Error("http server stopped", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("cleaning up app resources")
	application.Cleanup(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}

	log.Info("service stopped")
}

func runDemoGenerator(ctx context.Context, application *app.AppContext) {
	log := application.Log
	log.Info("starting demo market generator")

	gen := utils.NewMarketGenerator(application.Config.ProductID)
	base := 1000.0
	if p := application.Product.Product(); p != nil {
		base = p.OwnerPrice.Amount
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("demo market generator stopped")
			return
		case <-ticker.C:
			envs, err := gen.GenerateBatch(3, base)
			if err != nil {
				log.Warn("generating demo batch failed", "error", err)
				continue
			}
			for _, env := range envs {
				if err := application.KafkaProducer.PublishChange(ctx, env); err != nil {
					log.Warn("publishing demo change failed", "error", err)
				}
			}
		}
	}
}
