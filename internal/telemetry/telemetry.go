// Package telemetry holds the service's prometheus instruments.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsIngested counts completed ingestion runs by terminal status.
	DocumentsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ebookqa_documents_ingested_total",
		Help: "Ingestion runs that reached a terminal status.",
	}, []string{"status"})

	// PagesExtracted counts extracted pages by text source.
	PagesExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ebookqa_pages_extracted_total",
		Help: "Pages resolved during extraction, labeled by text source.",
	}, []string{"source"})

	// IngestDuration observes end-to-end processing time per document.
	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ebookqa_ingest_duration_seconds",
		Help:    "Wall time of one document ingestion run.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	// RelevanceRefusals counts questions rejected by the relevance gate.
	RelevanceRefusals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ebookqa_relevance_refusals_total",
		Help: "Questions refused because retrieved context was too distant.",
	})

	// Answers counts answering operations by kind and outcome.
	Answers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ebookqa_answers_total",
		Help: "Answer engine operations by kind and outcome.",
	}, []string{"kind", "outcome"})
)
