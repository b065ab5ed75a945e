package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/congo-pay/walletledger/internal/model"
	"github.com/congo-pay/walletledger/internal/outbox"
	"github.com/congo-pay/walletledger/internal/reconcile"
	"github.com/congo-pay/walletledger/internal/wallet"
)

func newRootCommand(rt *runtime) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operator tooling for the wallet ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.SetOut(rt.out)

	rootCmd.AddCommand(
		newMigrateCommand(rt),
		newReconcileCommand(rt),
		newRelayCommand(rt),
		newSystemWalletCommand(rt),
	)
	return rootCmd
}

func newMigrateCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrating: %w", err)
			}
			rt.printf("schema up to date\n")
			return nil
		},
	}
}

func newReconcileCommand(rt *runtime) *cobra.Command {
	var walletID, orgID string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare wallet balances with the ledger and report drift",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (walletID == "") == (orgID == "") {
				return fmt.Errorf("exactly one of --wallet or --org is required")
			}
			store, closeFn, err := rt.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			checker := reconcile.NewChecker(store, rt.logger)

			if walletID != "" {
				id, err := uuid.Parse(walletID)
				if err != nil {
					return fmt.Errorf("invalid --wallet: %w", err)
				}
				job, err := checker.ReconcileWallet(cmd.Context(), uuid.Nil, id)
				if err != nil {
					return err
				}
				printJob(rt, job)
				return driftErr(job)
			}

			id, err := uuid.Parse(orgID)
			if err != nil {
				return fmt.Errorf("invalid --org: %w", err)
			}
			res, err := checker.ReconcileOrganization(cmd.Context(), id)
			if err != nil {
				return err
			}
			for _, job := range res.Wallets {
				if job.HasDrift() {
					printJob(rt, job)
				}
			}
			printJob(rt, res.Job)
			return driftErr(res.Job)
		},
	}

	cmd.Flags().StringVar(&walletID, "wallet", "", "wallet id to reconcile")
	cmd.Flags().StringVar(&orgID, "org", "", "organization id to reconcile")
	return cmd
}

func printJob(rt *runtime, job model.ReconcileJob) {
	rt.printf("%s %s %s recorded=%s ledger=%s drift=%s wallets=%d\n",
		job.Scope, job.ScopeID, job.Status,
		job.RecordedBalance.StringFixed(model.MinorUnits),
		job.LedgerBalance.StringFixed(model.MinorUnits),
		job.Drift.StringFixed(model.MinorUnits),
		job.WalletsChecked,
	)
}

// driftErr makes the command exit non-zero when drift was found so schedulers
// can alert on it.
func driftErr(job model.ReconcileJob) error {
	if job.HasDrift() {
		return fmt.Errorf("drift detected for %s %s", job.Scope, job.ScopeID)
	}
	return nil
}

func newRelayCommand(rt *runtime) *cobra.Command {
	var once bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Publish pending outbox events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeStore, err := rt.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()
			publisher, closePublisher, err := rt.openPublisher()
			if err != nil {
				return err
			}
			defer closePublisher()

			relay := outbox.NewRelay(store, publisher, rt.cfg.RelayBatchSize, rt.logger)
			if once {
				stats, err := relay.DispatchOnce(cmd.Context())
				if err != nil {
					return err
				}
				rt.printf("dispatched=%d failed=%d\n", stats.Dispatched, stats.Failed)
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return relay.Run(ctx, interval)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "dispatch a single batch and exit")
	cmd.Flags().DurationVar(&interval, "interval", rt.cfg.RelayInterval, "poll interval")
	return cmd
}

func newSystemWalletCommand(rt *runtime) *cobra.Command {
	var ownerID, orgID, currency string

	cmd := &cobra.Command{
		Use:   "system-wallet",
		Short: "Provision an organization's SYSTEM issuance wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := uuid.Parse(ownerID)
			if err != nil {
				return fmt.Errorf("invalid --owner: %w", err)
			}
			org, err := uuid.Parse(orgID)
			if err != nil {
				return fmt.Errorf("invalid --org: %w", err)
			}
			store, closeFn, err := rt.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			w, err := wallet.NewService(store, rt.logger).Create(cmd.Context(), model.Actor{ID: owner, OrgID: org}, wallet.CreateInput{
				Type:     model.WalletTypeSystem,
				Currency: currency,
			})
			if err != nil {
				return err
			}
			rt.printf("%s\n", w.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&ownerID, "owner", "", "owning user id (required)")
	cmd.Flags().StringVar(&orgID, "org", "", "organization id (required)")
	cmd.Flags().StringVar(&currency, "currency", "", "ISO currency code (required)")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("currency")
	return cmd
}

// executeContext is used by tests to run a command line against rt.
func executeContext(ctx context.Context, rt *runtime, args ...string) error {
	cmd := newRootCommand(rt)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}
