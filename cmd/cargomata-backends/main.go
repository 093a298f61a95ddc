// Cargomata backends — симулятор трёх downstream-сервисов (CMS, WMS, ROS)
// для локальной разработки и демонстраций.
//
// Отказы детерминированы и управляются содержимым заказа:
//
//	CMS: client_id с префиксом "suspended-"  → CLIENT_SUSPENDED
//	     суммарное количество > 100          → CREDIT_LIMIT_EXCEEDED
//	WMS: SKU с префиксом "OOS-"              → INSUFFICIENT_INVENTORY
//	     SKU с префиксом "BAD-"              → INVALID_SKU
//	ROS: зона "restricted"                   → RESTRICTED_ZONE
//	     зона "remote"                       → NO_DRIVERS_AVAILABLE
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cargomata/internal/domain"
	"github.com/shaiso/Cargomata/internal/telemetry"
)

// orderRequest — заказ, который присылает координатор.
type orderRequest struct {
	ID           string               `json:"id"`
	ClientID     string               `json:"client_id"`
	Priority     string               `json:"priority"`
	Items        []domain.LineItem    `json:"items"`
	Destinations []domain.Destination `json:"destinations"`
}

// wireError — тело ошибки в ответе сервиса.
type wireError struct {
	Kind    string         `json:"kind"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting cargomata-backends")

	mux := http.NewServeMux()

	mux.HandleFunc("POST /cms/verify", func(w http.ResponseWriter, r *http.Request) {
		order, ok := decodeOrder(w, r)
		if !ok {
			return
		}

		if strings.HasPrefix(order.ClientID, "suspended-") {
			reject(w, wireError{
				Kind:    "BUSINESS_RULE",
				Code:    "CLIENT_SUSPENDED",
				Message: fmt.Sprintf("client %s account is suspended", order.ClientID),
			})
			return
		}

		total := 0
		for _, item := range order.Items {
			total += item.Quantity
		}
		if total > 100 {
			reject(w, wireError{
				Kind:    "BUSINESS_RULE",
				Code:    "CREDIT_LIMIT_EXCEEDED",
				Message: "order volume exceeds client credit limit",
				Details: map[string]any{"total_quantity": total, "limit": 100},
			})
			return
		}

		accept(w, map[string]any{
			"contract_id":    "CTR-" + uuid.New().String()[:8],
			"billing_status": "CLEARED",
		})
	})

	mux.HandleFunc("POST /cms/cancel", ack(logger, "contract cancelled"))

	mux.HandleFunc("POST /wms/register", func(w http.ResponseWriter, r *http.Request) {
		order, ok := decodeOrder(w, r)
		if !ok {
			return
		}

		for _, item := range order.Items {
			if strings.HasPrefix(item.SKU, "OOS-") {
				reject(w, wireError{
					Kind:    "BUSINESS_RULE",
					Code:    "INSUFFICIENT_INVENTORY",
					Message: fmt.Sprintf("sku %s is out of stock", item.SKU),
					Details: map[string]any{"sku": item.SKU, "requested": item.Quantity, "available": 0},
				})
				return
			}
			if strings.HasPrefix(item.SKU, "BAD-") {
				reject(w, wireError{
					Kind:    "VALIDATION",
					Code:    "INVALID_SKU",
					Message: fmt.Sprintf("sku %s does not exist", item.SKU),
					Details: map[string]any{"sku": item.SKU},
				})
				return
			}
		}

		accept(w, map[string]any{
			"package_id": "PKG-" + uuid.New().String()[:8],
			"location":   "A-12-3",
		})
	})

	mux.HandleFunc("POST /wms/release", ack(logger, "package released"))

	mux.HandleFunc("POST /ros/optimize", func(w http.ResponseWriter, r *http.Request) {
		order, ok := decodeOrder(w, r)
		if !ok {
			return
		}

		for _, dest := range order.Destinations {
			switch dest.Zone {
			case "restricted":
				reject(w, wireError{
					Kind:    "BUSINESS_RULE",
					Code:    "RESTRICTED_ZONE",
					Message: fmt.Sprintf("delivery to zone %q requires a permit", dest.Zone),
					Details: map[string]any{"address": dest.Address},
				})
				return
			case "remote":
				reject(w, wireError{
					Kind:    "BUSINESS_RULE",
					Code:    "NO_DRIVERS_AVAILABLE",
					Message: "no drivers available for remote zone",
					Details: map[string]any{"address": dest.Address},
				})
				return
			}
		}

		accept(w, map[string]any{
			"route_id": "RT-" + uuid.New().String()[:8],
			"driver":   "driver-17",
			"vehicle":  "van-04",
			"eta":      time.Now().Add(4 * time.Hour),
		})
	})

	mux.HandleFunc("POST /ros/release", ack(logger, "route released"))

	addr := ":9090"
	if v := os.Getenv("BACKENDS_PORT"); v != "" {
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)

	logger.Info("stopped")
}

// decodeOrder разбирает тело запроса; при ошибке отвечает сам.
func decodeOrder(w http.ResponseWriter, r *http.Request) (*orderRequest, bool) {
	var order orderRequest
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"ok": false,
			"error": wireError{
				Kind:    "VALIDATION",
				Code:    "MALFORMED_REQUEST",
				Message: "invalid request body",
			},
		})
		return nil, false
	}
	return &order, true
}

// accept отвечает успехом с полями результата шага.
func accept(w http.ResponseWriter, result map[string]any) {
	body := map[string]any{"ok": true}
	for k, v := range result {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

// reject отвечает бизнес-отказом.
func reject(w http.ResponseWriter, we wireError) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"ok":    false,
		"error": we,
	})
}

// ack — обработчик компенсаций: всегда успех.
func ack(logger *slog.Logger, msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		logger.Info(msg, "order_id", body["order_id"])
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
