package main

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/ebookqa/config"
	"github.com/mohammad-safakhou/ebookqa/internal/answer"
	"github.com/mohammad-safakhou/ebookqa/internal/blob"
	"github.com/mohammad-safakhou/ebookqa/internal/chunker"
	"github.com/mohammad-safakhou/ebookqa/internal/ingest"
	"github.com/mohammad-safakhou/ebookqa/internal/ocr"
	"github.com/mohammad-safakhou/ebookqa/internal/pdf"
	"github.com/mohammad-safakhou/ebookqa/internal/provider"
	"github.com/mohammad-safakhou/ebookqa/internal/queue/streams"
	"github.com/mohammad-safakhou/ebookqa/internal/runtime"
	"github.com/mohammad-safakhou/ebookqa/internal/store"
	"github.com/mohammad-safakhou/ebookqa/internal/vector"
)

// deps is the shared dependency graph of the api server and the worker.
type deps struct {
	cfg      *config.Config
	store    *store.Store
	redis    *redis.Client
	blobs    blob.Store
	vectors  vector.Store
	gateway  *provider.Gateway
	openai   *provider.OpenAIClient
	ingestor *ingest.Ingestor
	engine   *answer.Engine
}

func buildDeps(ctx context.Context, cfgPath string) (*deps, error) {
	cfg := config.LoadConfig(cfgPath)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	rdb, err := runtime.NewRedisClient(ctx, cfg.Storage.Redis)
	if err != nil {
		return nil, err
	}
	blobs, err := blob.New(cfg.Storage.Blob)
	if err != nil {
		return nil, err
	}

	openai, err := provider.NewOpenAI(cfg.LLM.OpenAI)
	if err != nil {
		return nil, err
	}
	fallback, err := provider.NewFallbackEmbedder(cfg.LLM)
	if err != nil {
		return nil, err
	}
	gateway, err := provider.NewGateway(openai, fallback, cfg.LLM.OpenAI.EmbeddingDimensions, nil)
	if err != nil {
		return nil, err
	}

	ocrClient, err := ocr.New(cfg.OCR)
	if err != nil {
		return nil, err
	}
	renderer := pdf.FallbackRenderer{
		Primary:  pdf.FitzRenderer{},
		Fallback: pdf.PopplerRenderer{},
		Logger:   log.New(log.Writer(), "[RENDER] ", log.LstdFlags),
	}
	extractor := pdf.NewExtractor(renderer, ocrClient, cfg.PDF, nil)

	vectors := vector.NewPG(st.DB, cfg.LLM.OpenAI.EmbeddingDimensions)
	publisher := streams.NewPublisher(rdb, cfg.Ingest.Stream)
	ingestor := ingest.New(st, blobs, vectors, extractor, gateway, publisher,
		chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap), cfg.Ingest, nil)
	engine := answer.NewEngine(st, vectors, gateway, openai, ingestor, cfg.Retrieval, nil)

	return &deps{
		cfg: cfg, store: st, redis: rdb, blobs: blobs, vectors: vectors,
		gateway: gateway, openai: openai, ingestor: ingestor, engine: engine,
	}, nil
}

func (d *deps) Close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.store != nil && d.store.DB != nil {
		_ = d.store.DB.Close()
	}
}
