package cmd

import (
	"context"
	"log"
	httpNet "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"crypto-signals/internal/contract"
	"crypto-signals/internal/delivery/http"
	"crypto-signals/internal/delivery/telegram"
	"crypto-signals/internal/delivery/ws"
	"crypto-signals/internal/exchange"
	"crypto-signals/internal/repository"
	"crypto-signals/internal/service"
	"crypto-signals/pkg/logger"
	"crypto-signals/pkg/utils"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the signal pipeline and API server",
	Run:   Start,
}

func Start(cmd *cobra.Command, args []string) {
	// Create a context that is canceled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appDep, err := NewAppDependency(ctx)
	if err != nil {
		log.Fatalf("Failed to create app dependency: %v", err)
	}

	repo := repository.NewRepository(appDep.cfg, appDep.cache, appDep.db.DB, appDep.log)

	adapter := exchange.NewPaperAdapter(repo.BinanceRepo)
	gate := contract.NewStaticGate(contract.TierPro)
	credentials := contract.NewStaticCredentialStore(contract.ExchangeCredential{
		Exchange: "binance",
		Testnet:  true,
	})
	auth := contract.NewStaticAuthenticator(map[string]uint{"dev-token": 1})

	services := service.NewService(
		appDep.cfg,
		appDep.log,
		repo,
		appDep.cache,
		appDep.notifications,
		adapter,
		gate,
		credentials,
	)

	hub := ws.NewHub(appDep.cfg, appDep.log, appDep.notifications)
	wsHandler := ws.NewHandler(hub, auth, appDep.log)
	wsHandler.SetupRoutes(appDep.echo)

	httpHandler := http.NewHttpAPIHandler(ctx, appDep.echo, appDep.validator, services, auth)

	utils.GoSafe(func() {
		if err := hub.Run(ctx); err != nil {
			appDep.log.Error("Connection hub stopped", logger.ErrorField(err))
		}
	})

	if appDep.cfg.Telegram.BotToken != "" {
		notifier, err := telegram.NewNotifier(appDep.cfg, appDep.log, appDep.notifications)
		if err != nil {
			appDep.log.Error("Failed to start telegram notifier", logger.ErrorField(err))
		} else {
			utils.GoSafe(func() {
				if err := notifier.Run(ctx); err != nil {
					appDep.log.Error("Telegram notifier stopped", logger.ErrorField(err))
				}
			})
		}
	}

	if err := services.SchedulerService.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	apiServer := NewHTTPServer(ctx, appDep, httpHandler)
	go func() {
		if err := apiServer.Start(); err != nil && err != httpNet.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Println("Shutting down gracefully...")

	<-services.SchedulerService.Stop().Done()

	if err := apiServer.Stop(); err != nil {
		log.Fatalf("Failed to stop HTTP server: %v", err)
	}

	if err := appDep.Close(); err != nil {
		log.Fatalf("Failed to close app dependency: %v", err)
	}
}
