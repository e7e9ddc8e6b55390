package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/orehub/metalx/internal/config"
	"github.com/orehub/metalx/internal/database"
	"github.com/orehub/metalx/internal/handler"
	"github.com/orehub/metalx/internal/monitor"
	"github.com/orehub/metalx/internal/notify"
	"github.com/orehub/metalx/internal/queue"
	"github.com/orehub/metalx/internal/repository"
	"github.com/orehub/metalx/internal/router"
	"github.com/orehub/metalx/internal/service"
	"github.com/orehub/metalx/internal/utils"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := utils.Logger("main", "main")

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, database.Pool{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable, live updates and rate limiting disabled")
	}

	store := repository.NewStore(db)
	broadcaster := notify.NewRedisBroadcaster(rdb)
	notifier := notify.NewNotifier(broadcaster, notify.QueueEnqueuer{}, 5*time.Second)
	svc := service.NewAuctionService(store, notifier, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background workers: email delivery off the queue and the auction
	// scheduler.
	go func() {
		if err := queue.StartEmailConsumer(); err != nil {
			log.WithError(err).Error("email consumer exited")
		}
	}()
	mon := monitor.New(svc, nil, cfg.MonitorInterval, cfg.MonitorTolerance)
	mon.Start(ctx)
	defer mon.Stop()

	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Handlers{
		Auth:     handler.NewAuthHandler(store.Users, cfg.JWTSecret, cfg.AccessTTLMin, cfg.BcryptCost),
		Auctions: handler.NewAuctionHandler(svc, store.Auctions),
		Bids:     handler.NewBidHandler(svc, store.Watchlist),
		Live:     handler.NewLiveHandler(broadcaster),
	}, cfg, rdb)

	go func() {
		addr := ":" + cfg.Port
		log.WithField("addr", addr).WithField("env", cfg.Env).Info("listening")
		if err := e.Start(addr); err != nil {
			log.WithError(err).Info("http server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
}
