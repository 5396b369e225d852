package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/ebookqa/internal/queue/streams"
	"github.com/mohammad-safakhou/ebookqa/internal/runtime"
	srv "github.com/mohammad-safakhou/ebookqa/internal/server"
	"github.com/mohammad-safakhou/ebookqa/internal/worker"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := runtime.NotifyShutdown(context.Background())
			defer cancel()

			d, err := buildDeps(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer d.Close()

			s := srv.New(d.store, d.ingestor, d.engine,
				srv.NewVectorCleaner(d.vectors), d.blobs, d.cfg, nil)

			janitor := srv.NewJanitor(d.store, d.cfg.Ingest, nil)
			go janitor.Run(ctx)

			// Serve also consumes ingest jobs so a single binary is a
			// complete deployment. Extra workers scale it out.
			if err := streams.EnsureGroup(ctx, d.redis, d.cfg.Ingest.Stream, d.cfg.Ingest.Group); err != nil {
				return err
			}
			consumerName := fmt.Sprintf("serve-%s", uuid.NewString()[:8])
			consumer := streams.NewConsumer(d.redis, d.cfg.Ingest.Stream, d.cfg.Ingest.Group, consumerName)
			workerLog := log.New(os.Stdout, "[WORKER] ", log.LstdFlags)
			go func() {
				if err := worker.NewProcessor(workerLog, consumer, d.ingestor).Start(ctx); err != nil && ctx.Err() == nil {
					log.Printf("[SERVE] ingest consumer stopped: %v", err)
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				if err := s.Start(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()
			log.Printf("[SERVE] listening on %s", d.cfg.Server.Address)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return s.Shutdown(shutdownCtx)
		},
	}
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	return serve
}
