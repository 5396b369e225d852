package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/ebookqa/internal/queue/streams"
	"github.com/mohammad-safakhou/ebookqa/internal/runtime"
	"github.com/mohammad-safakhou/ebookqa/internal/worker"
)

func workerCMD() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the ingestion worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := runtime.NotifyShutdown(context.Background())
			defer cancel()

			d, err := buildDeps(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer d.Close()

			stream := d.cfg.Ingest.Stream
			group := d.cfg.Ingest.Group
			if err := streams.EnsureGroup(ctx, d.redis, stream, group); err != nil {
				return err
			}

			consumerName := fmt.Sprintf("worker-%s", uuid.NewString()[:8])
			consumer := streams.NewConsumer(d.redis, stream, group, consumerName)
			logger := log.New(os.Stdout, "[WORKER] ", log.LstdFlags)
			return worker.NewProcessor(logger, consumer, d.ingestor).Start(ctx)
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	return cmd
}
