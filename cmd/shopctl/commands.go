package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Druid-alpha/shoplux-BE/internal/auth"
	"github.com/Druid-alpha/shoplux-BE/internal/messaging"
	"github.com/Druid-alpha/shoplux-BE/internal/orders"
	"github.com/Druid-alpha/shoplux-BE/internal/outbox"
	"github.com/Druid-alpha/shoplux-BE/internal/payment"
	"github.com/Druid-alpha/shoplux-BE/internal/settlement"
	"github.com/Druid-alpha/shoplux-BE/internal/store"
	"github.com/Druid-alpha/shoplux-BE/internal/telemetry"
)

func pendingCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending orders that started a payment but never settled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv("postgres_url")
			if err != nil {
				return err
			}
			defer e.Close()

			list, err := orders.NewOrderRepository(e.db).ListAwaitingPayment(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ORDER\tCUSTOMER\tPAYMENT REF\tTOTAL\tIDLE")
			for _, o := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", o.ID, o.CustomerID, o.PaymentRef, o.TotalAmount, age(o.UpdatedAt))
			}
			return w.Flush()
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 15*time.Minute, "only orders idle for at least this long")
	return cmd
}

func reconcileCmd() *cobra.Command {
	var (
		all       bool
		olderThan time.Duration
	)

	cmd := &cobra.Command{
		Use:   "reconcile [payment-ref]",
		Short: "Verify payments with the provider and settle what it confirms",
		Long: `Asks the payment provider for the status of a payment reference and
applies the verified result exactly as a webhook would. With --all every
pending order idle longer than --older-than is checked.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv("postgres_url")
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.cfg.Require(e.cfg.PaymentSecrets()...); err != nil {
				return err
			}

			gateway, err := payment.NewGateway(e.cfg, telemetry.NewHTTPClient(15*time.Second))
			if err != nil {
				return err
			}
			processor, err := settlement.NewProcessor(store.NewPostgres(e.db), e.logger)
			if err != nil {
				return err
			}
			reconciler := settlement.NewReconciler(gateway, processor, e.logger)

			refs := args
			if all {
				repo := orders.NewOrderRepository(e.db)
				list, err := repo.ListAwaitingPayment(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				// A customer may have paid through any attempt, not only the latest.
				for _, o := range list {
					issued, err := repo.PaymentRefs(cmd.Context(), o.ID)
					if err != nil {
						return err
					}
					refs = append(refs, issued...)
				}
			}

			return reconcileAll(cmd.Context(), reconciler, refs)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "reconcile every stale pending order")
	cmd.Flags().DurationVar(&olderThan, "older-than", 15*time.Minute, "with --all, only orders idle for at least this long")
	return cmd
}

func reconcileAll(ctx context.Context, r *settlement.Reconciler, refs []string) error {
	failures := 0
	for _, ref := range refs {
		outcome, err := r.Reconcile(ctx, ref)
		if err != nil {
			failures++
			fmt.Printf("%s\terror: %v\n", ref, err)
			continue
		}
		fmt.Printf("%s\t%s\n", ref, outcome)
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d references could not be reconciled", failures, len(refs))
	}
	return nil
}

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and drain the order event outbox",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the number of events not yet published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv("postgres_url")
			if err != nil {
				return err
			}
			defer e.Close()

			n, err := outbox.NewRepository(e.db).Pending(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%d pending events\n", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "flush",
		Short: "Publish every pending event to Kafka now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv("postgres_url", "kafka_brokers")
			if err != nil {
				return err
			}
			defer e.Close()

			producer := messaging.NewProducer(e.cfg.KafkaBrokers, e.cfg.OrderEventsTopic)
			defer func() { _ = producer.Close() }()

			relay := outbox.NewRelay(outbox.NewRepository(e.db), producer, e.logger,
				outbox.WithBatchSize(e.cfg.OutboxBatchSize))
			n, err := relay.Flush(cmd.Context())
			fmt.Printf("%d events published\n", n)
			return err
		},
	})

	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Issue an access token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv("access_token_secret")
			if err != nil {
				return err
			}
			defer e.Close()

			if role != auth.RoleUser && role != auth.RoleAdmin {
				return fmt.Errorf("unknown role %q", role)
			}

			token, err := auth.NewAuthenticator(e.cfg.AccessTokenSecret, e.logger).Issue(args[0], role, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", auth.RoleUser, "user or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
