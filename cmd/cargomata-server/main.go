// Cargomata server — приём заказов и координация саги в одном процессе.
//
// Сервер поднимает HTTP API, подключается к PostgreSQL и (опционально)
// к RabbitMQ, запускает координатор саги и обрабатывает заказы до
// терминального статуса. Без RabbitMQ работает в режиме без публикации
// событий — журнал в БД остаётся полным.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Cargomata/internal/adapter"
	"github.com/shaiso/Cargomata/internal/api"
	"github.com/shaiso/Cargomata/internal/breaker"
	"github.com/shaiso/Cargomata/internal/domain"
	"github.com/shaiso/Cargomata/internal/mq"
	"github.com/shaiso/Cargomata/internal/repo"
	"github.com/shaiso/Cargomata/internal/retry"
	"github.com/shaiso/Cargomata/internal/saga"
	"github.com/shaiso/Cargomata/internal/telemetry"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting cargomata-server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	// Создаём репозитории
	orderRepo := repo.NewOrderRepo(pool)
	eventRepo := repo.NewEventRepo(pool)

	// Подключаемся к RabbitMQ (опционально)
	var publisher saga.EventPublisher
	if conn, err := mq.Connect(mq.URL(), logger); err != nil {
		logger.Warn("RabbitMQ unavailable, events will not be published", "error", err)
	} else {
		defer conn.Close()
		if err := mq.SetupTopology(conn); err != nil {
			logger.Error("failed to setup mq topology", "error", err)
			os.Exit(1)
		}
		publisher = mq.NewPublisher(conn, logger)
	}

	// Circuit breaker'ы и retry-executor
	breakers := breaker.New(breaker.Config{})
	executor := retry.New(retry.Config{
		Breakers: breakers,
		Logger:   logger,
	})

	// Адаптеры downstream-сервисов
	adapters := buildAdapters()

	// Координатор саги
	coordinator := saga.New(saga.Config{
		Orders:    orderRepo,
		Events:    eventRepo,
		Publisher: publisher,
		Executor:  executor,
		Adapters:  adapters,
		Logger:    logger,
	})
	if err := coordinator.Start(ctx); err != nil {
		logger.Error("failed to start coordinator", "error", err)
		os.Exit(1)
	}

	// API handler
	handler := api.NewHandler(api.Config{
		Orders:     orderRepo,
		Events:     eventRepo,
		Dispatcher: coordinator,
		Breakers:   breakers,
		Logger:     logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	coordinator.Stop()

	logger.Info("stopped")
}

// buildAdapters создаёт HTTP-адаптеры трёх сервисов из окружения.
// BACKENDS_URL задаёт общий base URL; CMS_URL/WMS_URL/ROS_URL
// переопределяют его по отдельности.
func buildAdapters() map[domain.ServiceID]adapter.Adapter {
	base := os.Getenv("BACKENDS_URL")
	if base == "" {
		base = "http://localhost:9090"
	}

	cmsURL := base
	if v := os.Getenv("CMS_URL"); v != "" {
		cmsURL = v
	}
	wmsURL := base
	if v := os.Getenv("WMS_URL"); v != "" {
		wmsURL = v
	}
	rosURL := base
	if v := os.Getenv("ROS_URL"); v != "" {
		rosURL = v
	}

	return map[domain.ServiceID]adapter.Adapter{
		domain.ServiceContractVerification: adapter.NewContractVerification(cmsURL),
		domain.ServicePackageRegistration:  adapter.NewPackageRegistration(wmsURL),
		domain.ServiceRouteOptimization:    adapter.NewRouteOptimization(rosURL),
	}
}
