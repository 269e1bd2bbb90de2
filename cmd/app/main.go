package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"tutordesk/internal/config"
	apptTransition "tutordesk/internal/http-server/handlers/appointments/transition"
	apptComplete "tutordesk/internal/http-server/handlers/appointments/complete"
	apptCreate "tutordesk/internal/http-server/handlers/appointments/create"
	apptGet "tutordesk/internal/http-server/handlers/appointments/get"
	availCreate "tutordesk/internal/http-server/handlers/availability_templates/create"
	availDelete "tutordesk/internal/http-server/handlers/availability_templates/delete"
	availGet "tutordesk/internal/http-server/handlers/availability_templates/get"
	availUpdate "tutordesk/internal/http-server/handlers/availability_templates/update"
	ledgerGet "tutordesk/internal/http-server/handlers/ledger/get"
	ledgerHours "tutordesk/internal/http-server/handlers/ledger/hours"
	ledgerInterval "tutordesk/internal/http-server/handlers/ledger/interval"
	paymentCreate "tutordesk/internal/http-server/handlers/payments/create"
	paymentGet "tutordesk/internal/http-server/handlers/payments/get"
	paymentReceive "tutordesk/internal/http-server/handlers/payments/receive"
	slotCreate "tutordesk/internal/http-server/handlers/slots/create"
	slotDelete "tutordesk/internal/http-server/handlers/slots/delete"
	slotExpand "tutordesk/internal/http-server/handlers/slots/expand"
	slotGet "tutordesk/internal/http-server/handlers/slots/get"
	"tutordesk/internal/lock"
	"tutordesk/internal/models"
	"tutordesk/internal/notify"
	svc "tutordesk/internal/service"
	"tutordesk/internal/storage/postgres"
	slogpretty "tutordesk/pkg/handlers/slogPretty"
	"tutordesk/pkg/middleware/mwLogger"
	"tutordesk/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, X-User-ID, X-User-Role")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {

	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting API", slog.String("env", cfg.Env))
	log.Debug("Debug messages are enabled")

	storage, err := postgres.New(cfg.StoragePath)
	if err != nil {
		log.Error("Failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	if err := storage.Migrate(); err != nil {
		log.Error("Failed to run migrations", sl.Err(err))
		os.Exit(1)
	}

	guard, err := lock.NewRedisGuard(cfg.RedisAddr)
	if err != nil {
		log.Error("Failed to init redis guard", sl.Err(err))
		os.Exit(1)
	}

	var notifier notify.Notifier
	var amqpNotifier *notify.AMQPNotifier

	if cfg.Notify.AMQPURL != "" {
		amqpNotifier, err = notify.NewAMQPNotifier(cfg.Notify.AMQPURL, cfg.Notify.Exchange)
		if err != nil {
			log.Error("Failed to init AMQP notifier", sl.Err(err))
			os.Exit(1)
		}
		notifier = amqpNotifier
	} else {
		log.Info("AMQP URL is empty, notifications go to the log")
		notifier = notify.NewLogNotifier(log)
	}

	rates := svc.StaticRates{
		Amount:   cfg.Booking.DefaultRate,
		Currency: cfg.Booking.RateCurrency,
	}

	service := svc.NewService(log, storage, guard, notifier, rates, svc.Options{
		ClaimTTL:               cfg.Booking.ClaimTTL,
		DefaultWeeks:           cfg.Booking.DefaultWeeks,
		DefaultPaymentInterval: cfg.Ledger.DefaultPaymentInterval,
	})

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(mwLogger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)
	router.Use(CORS)

	// Availability Templates
	router.Post("/availability_templates", availCreate.New(log, service))
	router.Get("/availability_templates", availGet.New(log, service))
	router.Get("/availability_templates/{id}", availGet.New(log, service))
	router.Put("/availability_templates/{id}", availUpdate.New(log, service))
	router.Delete("/availability_templates/{id}", availDelete.New(log, service))

	// Slots
	router.Post("/slots", slotCreate.New(log, service))
	router.Get("/slots", slotGet.New(log, service))
	router.Get("/slots/{id}", slotGet.New(log, service))
	router.Post("/slots/expand", slotExpand.New(log, service))
	router.Delete("/slots/{id}", slotDelete.New(log, service))

	// Appointments
	router.Post("/appointments", apptCreate.New(log, service))
	router.Get("/appointments", apptGet.New(log, service))
	router.Get("/appointments/{id}", apptGet.New(log, service))
	router.Put("/appointments/{id}/confirm", apptTransition.New(log, service, models.AppointmentConfirmed))
	router.Put("/appointments/{id}/start", apptTransition.New(log, service, models.AppointmentInProgress))
	router.Put("/appointments/{id}/cancel", apptTransition.New(log, service, models.AppointmentCancelled))
	router.Put("/appointments/{id}/no_show", apptTransition.New(log, service, models.AppointmentNoShow))
	router.Put("/appointments/{id}/complete", apptComplete.New(log, service))

	// Ledger
	router.Get("/ledgers", ledgerGet.New(log, service))
	router.Get("/ledgers/{id}", ledgerGet.New(log, service))
	router.Post("/ledgers/hours", ledgerHours.New(log, service))
	router.Put("/ledgers/{id}/interval", ledgerInterval.New(log, service))

	// Payments
	router.Post("/payments", paymentCreate.New(log, service))
	router.Get("/payments/{id}", paymentGet.New(log, service))
	router.Put("/payments/{id}/receive", paymentReceive.New(log, service))

	serv := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	serverErrCh := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", slog.String("addr", cfg.Address))
		if err := serv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		} else {
			serverErrCh <- nil
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			log.Error("HTTP server stopped unexpectedly", sl.Err(err))
		} else {
			log.Info("HTTP server stopped gracefully")
		}
	}

	shutdownTimeout := cfg.HTTPServer.ShutdownTimeout

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Shutting down HTTP server", slog.String("timeout", shutdownTimeout.String()))

	if err := serv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", sl.Err(err))
	} else {
		log.Info("Server shutdown complete")
	}

	if storage != nil {
		if err := storage.Close(); err != nil {
			log.Error("Failed to close storage", sl.Err(err))
		} else {
			log.Info("Storage closed")
		}
	} else {
		log.Debug("Storage is nil, nothing to close")
	}

	if guard != nil {
		if err := guard.Close(); err != nil {
			log.Error("Failed to close redis guard", sl.Err(err))
		} else {
			log.Info("Redis guard closed")
		}
	}

	if amqpNotifier != nil {
		if err := amqpNotifier.Close(); err != nil {
			log.Error("Failed to close AMQP notifier", sl.Err(err))
		} else {
			log.Info("AMQP notifier closed")
		}
	}

	log.Info("Shutdown finished, server stopped")

}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
