// Package answer implements retrieval-augmented answering over indexed
// documents: question answering with a relevance gate, summarization and
// interview-question generation.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/ebookqa/config"
	"github.com/mohammad-safakhou/ebookqa/internal/pdf"
	"github.com/mohammad-safakhou/ebookqa/internal/provider"
	"github.com/mohammad-safakhou/ebookqa/internal/queue/streams"
	"github.com/mohammad-safakhou/ebookqa/internal/store"
	"github.com/mohammad-safakhou/ebookqa/internal/telemetry"
	"github.com/mohammad-safakhou/ebookqa/internal/vector"
)

// RefusalMessage is returned verbatim whenever the question is judged
// unrelated to the document. Keeping it fixed makes refusals recognizable to
// clients.
const RefusalMessage = "This question does not appear to be related to the content of this document, so I can't answer it."

// ErrNoContent is returned when a document has no indexed text to work with
// even after lazy re-indexing.
var ErrNoContent = errors.New("document has no indexed content")

// irrelevancePhrases convert a model answer into the fixed refusal when the
// model itself judged the question off-topic.
var irrelevancePhrases = []string{
	"not related to the document",
	"not mentioned in the document",
	"does not contain information",
	"doesn't contain information",
	"cannot answer this question based on",
	"can't answer this question based on",
	"no information about this in the provided",
	"unrelated to the provided context",
}

// DocGetter is the slice of the relational store the engine needs.
type DocGetter interface {
	GetDocument(ctx context.Context, id, ownerID int64) (store.Document, error)
}

// Embedder embeds a single query text.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Reindexer re-runs ingestion for a document inline. Used when an answering
// call finds no usable indexed content.
type Reindexer interface {
	Process(ctx context.Context, job streams.IngestJob) error
}

// Engine answers questions over one user's documents.
type Engine struct {
	docs      DocGetter
	vectors   vector.Store
	embedder  Embedder
	completer provider.Completer
	reindex   Reindexer
	cfg       config.RetrievalConfig
	logger    *log.Logger
}

func NewEngine(docs DocGetter, vectors vector.Store, embedder Embedder, completer provider.Completer,
	reindex Reindexer, cfg config.RetrievalConfig, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[ANSWER] ", log.LstdFlags)
	}
	return &Engine{docs: docs, vectors: vectors, embedder: embedder, completer: completer,
		reindex: reindex, cfg: cfg, logger: logger}
}

// Answer responds to a question about one document. history carries prior
// conversation turns in chronological order; only the most recent turns are
// forwarded to the model.
func (e *Engine) Answer(ctx context.Context, userID, docID int64, question string, history []provider.Message) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", errors.New("question is empty")
	}
	doc, err := e.docs.GetDocument(ctx, docID, userID)
	if err != nil {
		return "", err
	}
	if err := e.ensureIndexed(ctx, doc); err != nil {
		return "", err
	}

	qvec, err := e.embedder.EmbedOne(ctx, question)
	if err != nil {
		return "", fmt.Errorf("embed question: %w", err)
	}

	ns := vector.Namespace(userID)
	filter := vector.Filter{DocID: docID, UserID: userID}
	matches, err := e.vectors.Query(ctx, ns, qvec, e.cfg.TopK, filter)
	if err != nil {
		return "", fmt.Errorf("query index: %w", err)
	}
	if len(matches) == 0 || meanDistance(matches) > e.cfg.RelevanceThreshold {
		telemetry.RelevanceRefusals.Inc()
		telemetry.Answers.WithLabelValues("answer", "refused").Inc()
		return RefusalMessage, nil
	}

	contextText := joinMatches(matches, e.cfg.MaxContextChunks)
	messages := []provider.Message{{Role: "system", Content: answerSystemPrompt}}
	messages = append(messages, lastTurns(history, e.cfg.HistoryTurns)...)
	messages = append(messages, provider.Message{
		Role:    "user",
		Content: fmt.Sprintf("Document excerpts:\n%s\n\nQuestion: %s", contextText, question),
	})

	reply, err := e.completer.Complete(ctx, messages)
	if err != nil {
		e.logger.Printf("completion failed, serving context excerpt: %v", err)
		telemetry.Answers.WithLabelValues("answer", "fallback").Inc()
		return "(Fallback answer) " + truncate(contextText, 1000), nil
	}
	if judgedIrrelevant(reply) {
		telemetry.Answers.WithLabelValues("answer", "refused").Inc()
		return RefusalMessage, nil
	}
	telemetry.Answers.WithLabelValues("answer", "ok").Inc()
	return reply, nil
}

// Summarize produces a summary of the document from its first chunks. scope
// narrows the summary ("full", "chapter", "key points"...); empty means full.
func (e *Engine) Summarize(ctx context.Context, userID, docID int64, scope string) (string, error) {
	doc, err := e.docs.GetDocument(ctx, docID, userID)
	if err != nil {
		return "", err
	}
	if err := e.ensureIndexed(ctx, doc); err != nil {
		return "", err
	}

	items, err := e.fetchChunks(ctx, userID, docID, e.cfg.MaxContextChunks)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", ErrNoContent
	}

	if strings.TrimSpace(scope) == "" {
		scope = "full"
	}
	contextText := joinItems(items)
	reply, err := e.completer.Complete(ctx, []provider.Message{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: fmt.Sprintf(
			"Provide a structured %s summary of the following document excerpts:\n%s", scope, contextText)},
	})
	if err != nil {
		e.logger.Printf("summary completion failed, serving excerpt: %v", err)
		telemetry.Answers.WithLabelValues("summarize", "fallback").Inc()
		head := items
		if len(head) > 3 {
			head = head[:3]
		}
		return "(Fallback summary) " + truncate(joinItems(head), 1000), nil
	}
	telemetry.Answers.WithLabelValues("summarize", "ok").Inc()
	return reply, nil
}

// InterviewQuestions generates ten questions at the given difficulty level.
// There is no deterministic fallback; provider failure is surfaced.
func (e *Engine) InterviewQuestions(ctx context.Context, userID, docID int64, level string) ([]string, error) {
	doc, err := e.docs.GetDocument(ctx, docID, userID)
	if err != nil {
		return nil, err
	}
	if err := e.ensureIndexed(ctx, doc); err != nil {
		return nil, err
	}

	items, err := e.fetchChunks(ctx, userID, docID, e.cfg.MaxContextChunks)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNoContent
	}
	if level == "" {
		level = "medium"
	}

	reply, err := e.completer.Complete(ctx, []provider.Message{
		{Role: "system", Content: interviewSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(
			"Difficulty level: %s\n\nDocument excerpts:\n%s\n\nWrite exactly 10 interview questions, one per line.",
			level, joinItems(items))},
	})
	if err != nil {
		telemetry.Answers.WithLabelValues("interview", "error").Inc()
		return nil, fmt.Errorf("generate questions: %w", err)
	}

	questions := ParseQuestions(reply)
	if len(questions) == 0 {
		telemetry.Answers.WithLabelValues("interview", "error").Inc()
		return nil, errors.New("model returned no parseable questions")
	}
	telemetry.Answers.WithLabelValues("interview", "ok").Inc()
	return questions, nil
}

// ensureIndexed re-ingests the document inline when fewer than two meaningful
// chunks are indexed. Blocking the request is deliberate; it avoids a second
// queue round-trip for the common "asked before processing finished" case.
func (e *Engine) ensureIndexed(ctx context.Context, doc store.Document) error {
	if e.meaningfulChunks(ctx, doc) >= 2 {
		return nil
	}
	if e.reindex == nil {
		return ErrNoContent
	}
	e.logger.Printf("doc %d: no usable index, re-ingesting inline", doc.ID)
	if err := e.reindex.Process(ctx, streams.IngestJob{DocID: doc.ID, UserID: doc.OwnerID}); err != nil {
		return fmt.Errorf("lazy re-index: %w", err)
	}
	if e.meaningfulChunks(ctx, doc) == 0 {
		return ErrNoContent
	}
	return nil
}

func (e *Engine) meaningfulChunks(ctx context.Context, doc store.Document) int {
	items, err := e.fetchChunks(ctx, doc.OwnerID, doc.ID, 0)
	if err != nil {
		return 0
	}
	n := 0
	for _, it := range items {
		if pdf.Meaningful(stripProvenance(it.Text)) {
			n++
		}
	}
	return n
}

func (e *Engine) fetchChunks(ctx context.Context, userID, docID int64, limit int) ([]vector.Item, error) {
	items, err := e.vectors.Fetch(ctx, vector.Namespace(userID), vector.Filter{DocID: docID, UserID: userID}, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch chunks: %w", err)
	}
	return items, nil
}

// stripProvenance removes the bracketed page header so the meaningfulness
// test sees only the chunk body.
func stripProvenance(text string) string {
	if strings.HasPrefix(text, "[PAGE ") {
		if i := strings.Index(text, "]\n"); i >= 0 {
			return text[i+2:]
		}
	}
	return text
}

func meanDistance(matches []vector.Match) float64 {
	sum := 0.0
	for _, m := range matches {
		sum += m.Distance
	}
	return sum / float64(len(matches))
}

func joinMatches(matches []vector.Match, limit int) string {
	var b strings.Builder
	for i, m := range matches {
		if limit > 0 && i >= limit {
			break
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Text)
	}
	return b.String()
}

func joinItems(items []vector.Item) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(it.Text)
	}
	return b.String()
}

func lastTurns(history []provider.Message, limit int) []provider.Message {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}

func judgedIrrelevant(reply string) bool {
	lower := strings.ToLower(reply)
	for _, phrase := range irrelevancePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// ParseQuestions extracts questions from newline-delimited model output,
// stripping bullet and numbering prefixes.
func ParseQuestions(reply string) []string {
	var out []string
	for _, line := range strings.Split(reply, "\n") {
		q := strings.Trim(strings.TrimLeft(strings.TrimSpace(line), "-•*1234567890. )"), " \t")
		if q == "" {
			continue
		}
		out = append(out, q)
		if len(out) == 10 {
			break
		}
	}
	return out
}
