package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/navipesca/weighsync/internal/server"
	"github.com/navipesca/weighsync/internal/syncer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local API and the auto-sync worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Drain the pending queue once",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.close()

			report, err := app.sync.SyncPending(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
			for _, outcome := range report.Outcomes {
				if !outcome.Success {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", outcome.LocalID, outcome.Message)
				}
			}
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the pending queue summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.close()

			status, err := app.queue.Status(cmd.Context())
			if err != nil {
				return err
			}
			lastUpdated := "never"
			if !status.LastUpdated.IsZero() {
				lastUpdated = status.LastUpdated.Local().Format(time.DateTime)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending: %d\nlast updated: %s\ncredential valid: %t\n",
				status.PendingCount, lastUpdated, app.session.Valid())
			return nil
		},
	}
}

func newDraftsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drafts",
		Short: "List drafts in progress, most recently edited first",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.close()

			drafts, err := app.drafts.GetAll(cmd.Context())
			if err != nil {
				return err
			}
			sort.SliceStable(drafts, func(i, j int) bool {
				return drafts[i].UpdatedAt.After(drafts[j].UpdatedAt)
			})

			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(writer, "LOCAL ID\tVESSEL\tFISH\tCONTAINERS\tTOTAL\tUPDATED")
			for _, draft := range drafts {
				vessel := "-"
				if draft.VesselID != nil {
					vessel = fmt.Sprint(*draft.VesselID)
				}
				fmt.Fprintf(writer, "%s\t%s\t%s\t%d/%d\t%.2f\t%s\n",
					draft.LocalID, vessel, draft.FishType,
					draft.CompleteContainers(), len(draft.Containers),
					draft.TotalWithTax, draft.UpdatedAt.Local().Format(time.DateTime))
			}
			return writer.Flush()
		},
	}
}

func runServe(ctx context.Context) error {
	app, err := newApplication()
	if err != nil {
		return err
	}
	defer app.close()
	logger := app.logger

	worker, err := syncer.NewWorker(syncer.WorkerConfig{
		Syncer:       app.sync,
		Queue:        app.queue,
		Connectivity: app.probe,
		Interval:     app.config.SyncInterval,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Drafts:         app.drafts,
		Queue:          app.queue,
		Sync:           app.sync,
		Remote:         app.client,
		Session:        app.session,
		Events:         app.events,
		AllowedOrigins: app.config.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              app.config.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		logger.Info("server starting", zap.String("address", app.config.HTTPAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return worker.Run(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
