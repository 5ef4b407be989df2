package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/petcare/petcare-payments/config"
	"github.com/petcare/petcare-payments/internal/adapters/events"
	"github.com/petcare/petcare-payments/internal/adapters/payouts"
	"github.com/petcare/petcare-payments/internal/adapters/storage"
	"github.com/petcare/petcare-payments/internal/core/domain"
	"github.com/petcare/petcare-payments/internal/core/ports"
	"github.com/petcare/petcare-payments/internal/core/service"
)

// openDB loads the service configuration and opens its database.
func openDB() (*config.Config, *gorm.DB, error) {
	cfg := config.Load()
	db, err := storage.Connect(cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	return cfg, db, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the service tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDB()
			if err != nil {
				return err
			}
			if err := storage.Migrate(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func payoutsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payouts",
		Short: "Inspect and drive the payout outbox",
	}
	cmd.AddCommand(payoutsRunCmd())
	cmd.AddCommand(payoutsListCmd())
	cmd.AddCommand(payoutsRetryCmd())
	return cmd
}

func payoutsRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Deliver every payout that is due once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDB()
			if err != nil {
				return err
			}
			lease, _ := cmd.Flags().GetDuration("lease")

			var publisher ports.EventPublisher = events.NewLogPublisher(log.Printf)
			if cfg.Broker.URL != "" {
				amqpPublisher := events.NewAMQPPublisher(cfg.Broker.URL, cfg.Broker.Queue)
				defer amqpPublisher.Close()
				publisher = amqpPublisher
			}

			dispatcher := service.NewPayoutDispatcher(
				storage.NewPayoutRepository(db),
				payouts.NewClient(cfg.Payouts.BaseURL, cfg.Payouts.APIKey, cfg.Payouts.Timeout),
				publisher,
				service.DispatcherSettings{
					MaxAttempts: cfg.Payouts.MaxAttempts,
					BatchSize:   cfg.Payouts.BatchSize,
					Lease:       lease,
				},
			)
			n, err := dispatcher.RunOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d payout(s)\n", n)
			return err
		},
	}
	cmd.Flags().Duration("lease", 2*time.Minute, "How long a claimed payout stays locked")
	return cmd
}

func payoutsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List payout orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDB()
			if err != nil {
				return err
			}
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")

			orders, err := storage.NewPayoutRepository(db).List(cmd.Context(),
				domain.PayoutStatus(strings.ToUpper(status)), limit)
			if err != nil {
				return err
			}
			printPayouts(cmd.OutOrStdout(), orders)
			return nil
		},
	}
	cmd.Flags().StringP("status", "s", "", "Filter by status (PENDING, SENDING, SENT, FAILED, DEAD)")
	cmd.Flags().IntP("limit", "n", 50, "Maximum results")
	return cmd
}

func payoutsRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry [reservation-id]",
		Short: "Requeue a failed or dead payout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid reservation id %q", args[0])
			}
			_, db, err := openDB()
			if err != nil {
				return err
			}
			if err := requeue(cmd.Context(), storage.NewPayoutRepository(db), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "payout for reservation %d requeued\n", id)
			return nil
		},
	}
}

func requeue(ctx context.Context, outbox ports.PayoutOutbox, reservationID int64) error {
	return outbox.Requeue(ctx, reservationID, time.Now().UTC())
}

func webhooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhooks",
		Short: "Inspect recorded gateway notifications",
	}
	unreconciled := &cobra.Command{
		Use:   "unreconciled",
		Short: "List notifications that matched no reservation",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDB()
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			list, err := storage.NewWebhookEventRepository(db).ListByOutcome(cmd.Context(), domain.WebhookUnreconciled, limit)
			if err != nil {
				return err
			}
			printWebhookEvents(cmd.OutOrStdout(), list)
			return nil
		},
	}
	unreconciled.Flags().IntP("limit", "n", 50, "Maximum results")
	cmd.AddCommand(unreconciled)
	return cmd
}

func printPayouts(out io.Writer, orders []domain.PayoutOrder) {
	if len(orders) == 0 {
		fmt.Fprintln(out, "no payouts")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RESERVATION\tSTATUS\tNET\tCURRENCY\tATTEMPTS\tNEXT ATTEMPT\tLAST ERROR")
	for _, o := range orders {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			o.ReservationID, o.Status, o.Net.StringFixed(2), o.Currency, o.Attempts,
			o.NextAttemptAt.Format(time.RFC3339), truncate(o.LastError, 60))
	}
	_ = w.Flush()
}

func printWebhookEvents(out io.Writer, list []domain.WebhookEvent) {
	if len(list) == 0 {
		fmt.Fprintln(out, "no unreconciled notifications")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTOPIC\tRESOURCE\tRESERVATION\tRECEIVED\tDETAIL")
	for _, e := range list {
		reservation := "-"
		if e.ReservationID != nil {
			reservation = strconv.FormatInt(*e.ReservationID, 10)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Topic, e.ResourceID, reservation, e.CreatedAt.Format(time.RFC3339), truncate(e.Detail, 60))
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
