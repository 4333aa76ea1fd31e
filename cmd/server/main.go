package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hospital-registration/internal/config"
	"github.com/iliyamo/hospital-registration/internal/database"
	"github.com/iliyamo/hospital-registration/internal/handler"
	"github.com/iliyamo/hospital-registration/internal/middleware"
	"github.com/iliyamo/hospital-registration/internal/queue"
	"github.com/iliyamo/hospital-registration/internal/repository"
	"github.com/iliyamo/hospital-registration/internal/router"
	"github.com/iliyamo/hospital-registration/internal/service"
	"github.com/iliyamo/hospital-registration/internal/worker"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis may be nil; the waitlist degrades to the durable mirror and rate
	// limiting switches off.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable, waitlist ordering degrades to database")
	}

	txr := database.TxRunner{DB: db}
	orders := repository.NewOrderRepo(db)
	schedules := repository.NewScheduleRepo(db)
	patients := repository.NewPatientRepo(db)
	prices := repository.NewPriceRepo(db)
	policy := repository.NewConfigRepo(db)
	ledger := repository.NewSlotLedger(db)
	waitQueue := repository.NewWaitQueueRepo(rdb)
	notifier := service.NewBrokerNotifier()
	pricer := service.NewPricer(prices)

	// The payment gateway is an external integration point; this deployment
	// approves every charge and relies on the gateway's own ledger.
	gateway := service.GatewayFunc(func(ctx context.Context, orderNo string, amountCents int64) error {
		log.Printf("payment: charged %d cents for order %s", amountCents, orderNo)
		return nil
	})

	waitlist := service.NewWaitlist(service.WaitlistDeps{
		Tx: txr, Orders: orders, Schedules: schedules, Patients: patients,
		Ledger: ledger, Pricer: pricer, Queue: waitQueue, Notifier: notifier,
	})
	booking := service.NewBooking(service.BookingDeps{
		Tx: txr, Orders: orders, Schedules: schedules, Patients: patients,
		Ledger: ledger, Pricer: pricer, Policy: policy, Gateway: gateway,
		Cascade: waitlist, Notifier: notifier,
		PaymentTimeout: cfg.PaymentTimeout(),
	})
	consultation := service.NewConsultation(service.ConsultationDeps{
		Tx: txr, Orders: orders, Schedules: schedules,
		Policy: policy, Notifier: notifier,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.RunPaymentSweeper(ctx, booking, cfg.SweepInterval)
	go worker.RunWaitlistSync(ctx, waitlist, cfg.WaitlistSyncInterval)
	go func() {
		if err := queue.StartNotificationConsumer(); err != nil {
			log.Printf("notify-consumer: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)

	var limiter echo.MiddlewareFunc
	if rlCfg := config.LoadRateLimitConfig(); rlCfg.Enabled && rdb != nil {
		limiter = middleware.NewTokenBucket(rlCfg, rdb)
	}
	router.RegisterPatient(e, handler.NewBookingHandler(booking), handler.NewWaitlistHandler(waitlist), cfg.JWTSecret, limiter)
	router.RegisterDoctor(e, handler.NewConsultationHandler(consultation), cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
