package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewServiceCmd создаёт группу команд для управления downstream-сервисами.
func NewServiceCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "services",
		Aliases: []string{"service"},
		Short:   "Inspect and manage downstream services",
	}

	cmd.AddCommand(
		newServiceHealthCmd(clientFn, outputFn),
		newServiceRecoverCmd(clientFn, outputFn),
	)

	return cmd
}

func newServiceHealthCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show circuit breaker state of all services",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			health, err := client.ServiceHealthAll()
			if err != nil {
				return err
			}

			headers := []string{"SERVICE", "AVAILABLE", "FAILURES", "LAST_FAILURE"}
			rows := make([][]string, len(health))
			for i, h := range health {
				rows[i] = []string{
					h.Service,
					strconv.FormatBool(h.Available),
					strconv.Itoa(h.ConsecutiveFailures),
					h.LastFailureAt,
				}
			}

			out.Print(headers, rows, health)
			return nil
		},
	}
}

func newServiceRecoverCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "recover SERVICE",
		Short: "Force-close the circuit breaker of a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.RecoverService(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Service recovered: %s", args[0]))
			return nil
		},
	}
}
