package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"notesync/internal/collection"
	"notesync/internal/config"
	httpx "notesync/internal/http"
	"notesync/internal/logging"
	"notesync/internal/metrics"
	"notesync/internal/note"
	"notesync/internal/store"
)

func main() {
	cfg, _ := config.Load()

	rootCmd := &cobra.Command{
		Use:           "notesync",
		Short:         "Date-keyed notes and JSON collections with last-write-wins sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfg.StoreBackend, "backend", cfg.StoreBackend, "store backend (json, sqlite, postgres, memory)")
	rootCmd.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for json and sqlite backends")
	rootCmd.PersistentFlags().StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "postgres DSN")

	rootCmd.AddCommand(serveCmd(&cfg))
	rootCmd.AddCommand(migrateCmd(&cfg))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP sync server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.Host, "host", cfg.Host, "listen host")
	cmd.Flags().StringVar(&cfg.Port, "port", cfg.Port, "listen port")
	return cmd
}

func migrateCmd(cfg *config.Config) *cobra.Command {
	var from, to store.Options

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy every collection and schema from one backend to another",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New(cfg.Environment, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			n, err := migrate(cmd.Context(), from, to, log)
			if err != nil {
				return err
			}
			log.Info("migrated items", zap.Int("count", n), zap.String("from", from.Backend), zap.String("to", to.Backend))
			return nil
		},
	}
	cmd.Flags().StringVar(&from.Backend, "from", "json", "source backend")
	cmd.Flags().StringVar(&from.DataDir, "from-data-dir", cfg.DataDir, "source data directory")
	cmd.Flags().StringVar(&from.DatabaseURL, "from-database-url", cfg.DatabaseURL, "source postgres DSN")
	cmd.Flags().StringVar(&to.Backend, "to", "sqlite", "destination backend")
	cmd.Flags().StringVar(&to.DataDir, "to-data-dir", cfg.DataDir, "destination data directory")
	cmd.Flags().StringVar(&to.DatabaseURL, "to-database-url", cfg.DatabaseURL, "destination postgres DSN")
	return cmd
}

// migrate replaces each source collection and the schema registry in the
// destination. It returns the number of items copied.
func migrate(ctx context.Context, from, to store.Options, log *zap.Logger) (int, error) {
	src, err := store.New(ctx, from, log)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst, err := store.New(ctx, to, log)
	if err != nil {
		return 0, fmt.Errorf("open destination: %w", err)
	}
	defer dst.Close()

	names, err := src.Collections(ctx)
	if err != nil {
		return 0, fmt.Errorf("list source collections: %w", err)
	}
	total := 0
	for _, name := range names {
		items, err := src.Load(ctx, name)
		if err != nil {
			return total, fmt.Errorf("load source %s: %w", name, err)
		}
		if err := dst.Save(ctx, name, items); err != nil {
			return total, fmt.Errorf("save destination %s: %w", name, err)
		}
		log.Debug("migrated collection", zap.String("collection", name), zap.Int("count", len(items)))
		total += len(items)
	}

	schemas, err := src.LoadSchemas(ctx)
	if err != nil {
		return total, fmt.Errorf("load source schemas: %w", err)
	}
	if err := dst.SaveSchemas(ctx, schemas); err != nil {
		return total, fmt.Errorf("save destination schemas: %w", err)
	}
	return total, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	log, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	s, err := store.New(ctx, store.Options{
		Backend:     cfg.StoreBackend,
		DataDir:     cfg.DataDir,
		DatabaseURL: cfg.DatabaseURL,
	}, log)
	if err != nil {
		return fmt.Errorf("create store (backend=%s): %w", cfg.StoreBackend, err)
	}
	defer s.Close()

	items := &collection.Service{
		Repo:       s,
		Log:        log,
		Validators: map[string]collection.Validator{note.CollectionName: note.ValidateItem},
	}
	svc := &note.Service{Items: items}
	r := httpx.NewRouter(cfg, items, svc, metrics.NewCollector("notesync"), log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.HTTPAddr()),
			zap.String("store", cfg.StoreBackend),
			zap.String("data_dir", cfg.DataDir),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-ch:
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
