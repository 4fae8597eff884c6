package gateway

import (
	"context"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"

	"github.com/aerodoc/aerodoc/internal/log"
)

// dimensionedEmbedder behaves like gemini-embedding-001: 3072 dimensions
// unless the request asks for truncation via OutputDimensionality. It
// records the last request for inspection.
type dimensionedEmbedder struct {
	lastReq *ai.EmbedRequest
}

const modelNativeDimension = 3072

func (e *dimensionedEmbedder) embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	e.lastReq = req

	dim := modelNativeDimension
	if cfg, ok := req.Options.(*genai.EmbedContentConfig); ok && cfg.OutputDimensionality != nil {
		dim = int(*cfg.OutputDimensionality)
	}

	embeddings := make([]*ai.Embedding, len(req.Input))
	for i := range req.Input {
		embeddings[i] = &ai.Embedding{Embedding: make([]float32, dim)}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func TestEmbedRequestsConfiguredDimension(t *testing.T) {
	g := genkit.Init(context.Background())

	fake := &dimensionedEmbedder{}
	embedder := genkit.DefineEmbedder(g, "test/embedder", nil, fake.embed)

	gw := NewGenkit(g, embedder, "test/model", 768, log.NewNop())

	vec, err := gw.Embed(context.Background(), "what is the never exceed speed?")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	cfg, ok := fake.lastReq.Options.(*genai.EmbedContentConfig)
	if !ok || cfg.OutputDimensionality == nil {
		t.Fatalf("request options = %#v, want EmbedContentConfig with OutputDimensionality", fake.lastReq.Options)
	}
	if *cfg.OutputDimensionality != 768 {
		t.Errorf("OutputDimensionality = %d, want 768", *cfg.OutputDimensionality)
	}
	if len(vec) != 768 {
		t.Errorf("embedding dimension = %d, want 768", len(vec))
	}
}

func TestEmbedZeroDimensionUsesModelDefault(t *testing.T) {
	g := genkit.Init(context.Background())

	fake := &dimensionedEmbedder{}
	embedder := genkit.DefineEmbedder(g, "test/embedder-default", nil, fake.embed)

	gw := NewGenkit(g, embedder, "test/model", 0, log.NewNop())

	vec, err := gw.Embed(context.Background(), "fuel capacity")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if fake.lastReq.Options != nil {
		t.Errorf("request options = %#v, want nil when no dimension is configured", fake.lastReq.Options)
	}
	if len(vec) != modelNativeDimension {
		t.Errorf("embedding dimension = %d, want model default %d", len(vec), modelNativeDimension)
	}
}

func TestEmbedRejectsEmptyResponse(t *testing.T) {
	g := genkit.Init(context.Background())

	embedder := genkit.DefineEmbedder(g, "test/embedder-empty", nil,
		func(context.Context, *ai.EmbedRequest) (*ai.EmbedResponse, error) {
			return &ai.EmbedResponse{}, nil
		})

	gw := NewGenkit(g, embedder, "test/model", 768, log.NewNop())

	if _, err := gw.Embed(context.Background(), "q"); err == nil {
		t.Error("expected error for empty embedding response")
	}
}
