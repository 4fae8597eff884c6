// Package rag orchestrates the question answering pipeline: strategy
// resolution, question embedding, vector retrieval, prompt rendering,
// answer generation, and conversation recording.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aerodoc/aerodoc/internal/chunker"
	"github.com/aerodoc/aerodoc/internal/conversation"
	"github.com/aerodoc/aerodoc/internal/index"
	"github.com/aerodoc/aerodoc/internal/prompt"
)

// Pipeline defaults.
const (
	// DefaultTopK is the number of chunks retrieved per question.
	DefaultTopK = 4

	// DefaultMaxHistoryTurns caps how many prior turns are rendered into the
	// prompt. Older turns stay in the store but are not sent to the model.
	DefaultMaxHistoryTurns = 20
)

// Stage failure sentinels. Each wraps the underlying gateway or store error,
// so errors.Is matches both the stage and the cause.
var (
	ErrEmbedding  = errors.New("embedding failed")
	ErrRetrieval  = errors.New("retrieval failed")
	ErrGeneration = errors.New("generation failed")
)

// Embedder converts text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces a completion for a fully rendered prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Index stores embedded chunks and answers similarity queries.
type Index interface {
	Upsert(ctx context.Context, chunk index.Chunk, vector []float32) error
	Query(ctx context.Context, vector []float32, k int) ([]index.Result, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// Conversations records and replays per-session turn history.
type Conversations interface {
	Append(ctx context.Context, sessionID string, turns ...conversation.Turn) error
	History(ctx context.Context, sessionID string) ([]conversation.Turn, error)
}

// Answer is the result of one pipeline run.
type Answer struct {
	Text      string         `json:"text"`
	Strategy  string         `json:"strategy"`
	SessionID string         `json:"session_id"`
	Sources   []index.Result `json:"sources"`
}

// Page is one page of extracted document text handed to Ingest.
type Page struct {
	Number int    `json:"page"`
	Text   string `json:"text"`
}

// Engine runs the pipeline against injected collaborators.
//
// Engine holds no per-request state and is safe for concurrent use.
type Engine struct {
	embedder      Embedder
	generator     Generator
	index         Index
	conversations Conversations
	registry      *prompt.Registry
	splitter      *chunker.Splitter
	logger        *slog.Logger

	topK            int
	maxHistoryTurns int
}

// Option configures an Engine.
type Option func(*Engine)

// WithTopK sets how many chunks are retrieved per question.
func WithTopK(k int) Option {
	return func(e *Engine) { e.topK = k }
}

// WithMaxHistoryTurns caps the prior turns rendered into prompts.
func WithMaxHistoryTurns(n int) Option {
	return func(e *Engine) { e.maxHistoryTurns = n }
}

// New creates an Engine.
func New(embedder Embedder, generator Generator, idx Index, conversations Conversations,
	registry *prompt.Registry, splitter *chunker.Splitter, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		embedder:        embedder,
		generator:       generator,
		index:           idx,
		conversations:   conversations,
		registry:        registry,
		splitter:        splitter,
		logger:          logger,
		topK:            DefaultTopK,
		maxHistoryTurns: DefaultMaxHistoryTurns,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Answer runs the full pipeline for one question.
//
// The strategy name must resolve exactly; there is no fallback to the
// default here, callers decide what an absent strategy means. The user and
// assistant turns are appended to the session only after generation
// succeeds, so a failed request never leaves a half-recorded exchange.
func (e *Engine) Answer(ctx context.Context, question, sessionID, strategyName string) (Answer, error) {
	strategy, err := e.registry.Get(strategyName)
	if err != nil {
		return Answer{}, err
	}

	vector, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	results, err := e.index.Query(ctx, vector, e.topK)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	history, err := e.conversations.History(ctx, sessionID)
	if err != nil {
		return Answer{}, fmt.Errorf("loading history for session %q: %w", sessionID, err)
	}
	if len(history) > e.maxHistoryTurns {
		history = history[len(history)-e.maxHistoryTurns:]
	}

	contexts := make([]string, len(results))
	for i, r := range results {
		contexts[i] = r.Chunk.Text
	}
	messages := make([]prompt.Message, len(history))
	for i, t := range history {
		messages[i] = prompt.Message{Role: t.Role, Text: t.Text}
	}
	rendered := strategy.Render(question, contexts, messages)

	text, err := e.generator.Generate(ctx, rendered)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	if err := e.conversations.Append(ctx, sessionID,
		conversation.Turn{Role: conversation.RoleUser, Text: question},
		conversation.Turn{Role: conversation.RoleAssistant, Text: text},
	); err != nil {
		return Answer{}, fmt.Errorf("recording turns for session %q: %w", sessionID, err)
	}

	e.logger.Info("answered question",
		"session_id", sessionID,
		"strategy", strategy.Name,
		"chunks", len(results),
		"history_turns", len(history))

	return Answer{
		Text:      text,
		Strategy:  strategy.Name,
		SessionID: sessionID,
		Sources:   results,
	}, nil
}

// Ingest indexes one document: prior chunks for the document are removed,
// then every page is split and each fragment embedded and upserted. It
// returns the number of chunks indexed.
//
// Embedding runs one synchronous call per fragment. Pages with no text are
// skipped, and a document whose pages are all empty indexes zero chunks
// without error.
func (e *Engine) Ingest(ctx context.Context, documentID string, pages []Page) (int, error) {
	if err := e.index.DeleteDocument(ctx, documentID); err != nil {
		return 0, fmt.Errorf("clearing previous chunks for %q: %w", documentID, err)
	}

	indexed := 0
	for _, page := range pages {
		for _, fragment := range e.splitter.Split(page.Text) {
			vector, err := e.embedder.Embed(ctx, fragment.Text)
			if err != nil {
				return indexed, fmt.Errorf("%w: document %q page %d offset %d: %w",
					ErrEmbedding, documentID, page.Number, fragment.StartOffset, err)
			}

			chunk := index.Chunk{
				ID:          fmt.Sprintf("%s:p%d:%d", documentID, page.Number, fragment.StartOffset),
				DocumentID:  documentID,
				Page:        page.Number,
				StartOffset: fragment.StartOffset,
				Text:        fragment.Text,
			}
			if err := e.index.Upsert(ctx, chunk, vector); err != nil {
				return indexed, fmt.Errorf("indexing chunk %q: %w", chunk.ID, err)
			}
			indexed++
		}
	}

	e.logger.Info("ingested document", "document_id", documentID, "pages", len(pages), "chunks", indexed)
	return indexed, nil
}
