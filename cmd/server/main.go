package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shoprewrite/backend/internal/domain"
)

const shutdownTimeout = 30 * time.Second

var catalogPath string

var rootCmd = &cobra.Command{
	Use:   "shoprewrite",
	Short: "Rewrites product copy and SEO fields of a Shopify store",
	Long: `shoprewrite generates new titles, descriptions and meta fields for
store products with a chat completion model and writes them back, together
with the height and diameter custom fields found in the product text.

Without a subcommand it serves the dashboard API.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var optimizeFlags optimizeOptions

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Run the rewrite pipeline once and stream progress to stdout",
	Example: `  shoprewrite optimize --collection 4242 --mode auto
  shoprewrite optimize --product 1,2,3 --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(optimizeFlags.collectionIDs) == 0 && len(optimizeFlags.productIDs) == 0 {
			return errors.New("at least one --collection or --product is required")
		}
		return optimize(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&catalogPath, "categories", "", "Path to a YAML category catalog replacing the built-in one")

	optimizeFlags.register(optimizeCmd.Flags())

	rootCmd.AddCommand(serveCmd, optimizeCmd)
}

func serve(ctx context.Context) error {
	a, err := newApp(os.Stdout, catalogPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// No write timeout: optimize responses stream for the whole run.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", a.cfg.Server.Port),
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().
			Str("addr", server.Addr).
			Str("environment", a.cfg.Server.Environment).
			Str("store", a.store.Domain).
			Str("model", a.cfg.OpenAI.Model).
			Bool("dry_run", a.cfg.Optimizer.DryRun).
			Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func optimize(cmd *cobra.Command) error {
	// Progress lines own stdout.
	a, err := newApp(os.Stderr, catalogPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.optimizer.ValidateMode(optimizeFlags.mode); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	job := domain.NewJob(uuid.NewString())

	// The first interrupt stops at the next product boundary, the second
	// aborts in-flight calls.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		select {
		case <-signals:
			a.logger.Warn().Str("job_id", job.ID).Msg("cancel requested, finishing current product")
			job.Cancel()
		case <-ctx.Done():
			return
		}
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	req := optimizeFlags.request(cmd.Flags(), a.store, a.cfg.Optimizer.DryRun)

	summary, err := a.optimizer.Run(ctx, job, req, os.Stdout)
	if err != nil {
		return err
	}
	a.logger.Info().
		Str("job_id", summary.JobID).
		Str("state", string(summary.State)).
		Int("updated", summary.Updated).
		Int("failed", summary.Failed).
		Msg("optimize finished")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
