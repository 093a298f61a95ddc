package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Cargomata/internal/mq"
)

// NewOrderCmd создаёт группу команд для работы с заказами.
func NewOrderCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "orders",
		Aliases: []string{"order"},
		Short:   "Manage orders",
	}

	cmd.AddCommand(
		newOrderSubmitCmd(clientFn, outputFn),
		newOrderListCmd(clientFn, outputFn),
		newOrderShowCmd(clientFn, outputFn),
		newOrderStatusCmd(clientFn, outputFn),
		newOrderEventsCmd(clientFn, outputFn),
		newOrderWatchCmd(outputFn),
	)

	return cmd
}

func newOrderSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an order from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read order file: %w", err)
			}

			var req SubmitOrderRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("parse order file: %w", err)
			}

			accepted, err := client.SubmitOrder(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Order accepted: %s", accepted.OrderID))
			out.Print(
				[]string{"ORDER_ID", "STATUS", "MODE", "ESTIMATED_COMPLETION", "STATUS_ENDPOINT"},
				[][]string{{
					accepted.OrderID,
					accepted.Status,
					accepted.Processing.Mode,
					accepted.Processing.EstimatedCompletion,
					accepted.Processing.StatusEndpoint,
				}},
				accepted,
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to order JSON file (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newOrderListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var clientID string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			orders, err := client.ListOrders(ListOrdersOpts{
				ClientID: clientID,
				Status:   status,
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "CLIENT_ID", "PRIORITY", "STATUS", "SUBMITTED"}
			rows := make([][]string, len(orders))
			for i, o := range orders {
				rows[i] = []string{o.ID, o.ClientID, o.Priority, o.Status, o.SubmittedAt}
			}

			out.Print(headers, rows, orders)
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "Filter by client ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (SUBMITTED, CMS_VERIFIED, ..., READY_FOR_DELIVERY, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newOrderShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ORDER_ID",
		Short: "Show order details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			order, err := client.GetOrder(args[0])
			if err != nil {
				return err
			}

			failure := ""
			if order.Failure != nil {
				failure = fmt.Sprintf("%s: %s", order.Failure.Code, order.Failure.Message)
			}

			out.Print(
				[]string{"ID", "CLIENT_ID", "PRIORITY", "STATUS", "FAILURE", "SUBMITTED"},
				[][]string{{order.ID, order.ClientID, order.Priority, order.Status, failure, order.SubmittedAt}},
				order,
			)
			return nil
		},
	}
}

func newOrderStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status ORDER_ID",
		Short: "Show order progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			progress, err := client.GetStatus(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ORDER_ID", "STATUS", "STAGE", "PROGRESS", "PERCENT"},
				[][]string{{
					progress.OrderID,
					progress.Status,
					progress.CurrentStage,
					fmt.Sprintf("%d/%d", progress.CompletedSteps, progress.TotalSteps),
					strconv.Itoa(progress.Percentage) + "%",
				}},
				progress,
			)

			if progress.Failure != nil {
				out.Error(fmt.Sprintf("%s (%s): %s", progress.Failure.Code, progress.Failure.Kind, progress.Failure.Message))
				out.Error("Suggested action: " + progress.Failure.SuggestedAction)
			}
			return nil
		},
	}
}

func newOrderEventsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "events ORDER_ID",
		Short: "Show order event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			events, err := client.ListEvents(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ID", "TYPE", "PAYLOAD", "CREATED"}
			rows := make([][]string, len(events))
			for i, ev := range events {
				payload, _ := json.Marshal(ev.Payload)
				rows[i] = []string{strconv.FormatInt(ev.ID, 10), ev.Type, string(payload), ev.CreatedAt}
			}

			out.Print(headers, rows, events)
			return nil
		},
	}
}

// newOrderWatchCmd подписывается на шину событий и печатает события
// в реальном времени. Подключается к RabbitMQ напрямую (MQ_URL).
func newOrderWatchCmd(outputFn func() *Output) *cobra.Command {
	var bindingKey string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream order events from the message bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelWarn,
			}))

			conn, err := mq.Connect(mq.URL(), logger)
			if err != nil {
				return fmt.Errorf("connect to mq: %w", err)
			}
			defer conn.Close()

			if err := mq.SetupTopology(conn); err != nil {
				return fmt.Errorf("setup topology: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out.Success("Watching order events (Ctrl+C to stop)...")

			err = mq.Subscribe(ctx, conn, logger, bindingKey, func(ctx context.Context, msg *mq.Message) error {
				payload, _ := json.Marshal(msg.Payload)
				out.Line("%s  %-24s  %s  %s",
					msg.Timestamp.Format("15:04:05"),
					msg.Type,
					msg.OrderID,
					string(payload),
				)
				return nil
			})
			if err != nil && ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&bindingKey, "binding", "#", "AMQP binding key (e.g. order.*, step.completed)")

	return cmd
}
