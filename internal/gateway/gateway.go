// Package gateway adapts external model providers to the narrow embedding
// and generation interfaces the pipeline consumes.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"
)

// Genkit calls Google models through the genkit runtime: one embedder for
// vectorizing text and one chat model for answer generation.
//
// Generation always runs at temperature 0 so repeated questions over the
// same manual content produce stable answers.
type Genkit struct {
	g         *genkit.Genkit
	embedder  ai.Embedder
	model     string
	dimension int
	logger    *slog.Logger
}

// NewGenkit creates a gateway over an initialized genkit runtime.
// model is the full model name, e.g. "googleai/gemini-2.5-flash".
// dimension is the embedding width requested from the model; it must match
// the vector index the embeddings are written to.
func NewGenkit(g *genkit.Genkit, embedder ai.Embedder, model string, dimension int, logger *slog.Logger) *Genkit {
	if logger == nil {
		logger = slog.Default()
	}
	return &Genkit{g: g, embedder: embedder, model: model, dimension: dimension, logger: logger}
}

// Embed converts text into an embedding vector of the configured width.
//
// gemini-embedding-001 outputs 3072 dimensions by default; the request asks
// for truncation to the configured width (Matryoshka Representation
// Learning) so vectors fit the index. Cosine similarity is scale-invariant,
// so the truncated vectors need no re-normalization for ranking.
func (gw *Genkit) Embed(ctx context.Context, text string) ([]float32, error) {
	req := &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	}
	if gw.dimension > 0 {
		dim := int32(gw.dimension)
		req.Options = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	resp, err := gw.embedder.Embed(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("embedder returned no embeddings")
	}
	return resp.Embeddings[0].Embedding, nil
}

// Generate produces a completion for the fully rendered prompt.
func (gw *Genkit) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, gw.g,
		ai.WithModelName(gw.model),
		ai.WithPrompt(prompt),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature: genai.Ptr(float32(0)),
		}),
	)
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}

	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		return "", fmt.Errorf("model returned an empty answer")
	}

	gw.logger.Debug("generated answer", "model", gw.model, "prompt_bytes", len(prompt), "answer_bytes", len(answer))
	return answer, nil
}
