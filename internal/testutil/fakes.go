// Package testutil provides shared testing utilities: deterministic model
// fakes and database container setup.
package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// EmbedderDimension is the vector size produced by FakeEmbedder.
const EmbedderDimension = 64

// FakeEmbedder is a deterministic stand-in for the embedding gateway.
//
// It hashes lowercased tokens into a fixed-size bag-of-words vector, so
// texts sharing words embed closer together than unrelated texts. That is
// enough signal for retrieval tests to assert that topically related chunks
// rank above unrelated ones, with fully reproducible scores.
type FakeEmbedder struct {
	mu    sync.Mutex
	calls []string

	// Err, when set, is returned by every Embed call.
	Err error
}

// Embed returns the bag-of-words vector for text.
func (f *FakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}

	vector := make([]float32, EmbedderDimension)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(token, ".,;:!?\"'()")))
		vector[h.Sum32()%EmbedderDimension]++
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vector[0] = 1 // all-punctuation input still embeds to something
		return vector, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= scale
	}
	return vector, nil
}

// Calls returns every text passed to Embed, in order.
func (f *FakeEmbedder) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := make([]string, len(f.calls))
	copy(calls, f.calls)
	return calls
}

// FakeGenerator is a deterministic stand-in for the generation gateway. It
// records every prompt it receives so tests can assert on rendered prompt
// content.
type FakeGenerator struct {
	mu      sync.Mutex
	prompts []string

	// Response is returned from Generate when Err is nil. When empty, a
	// fixed placeholder answer is returned.
	Response string

	// Err, when set, is returned by every Generate call.
	Err error
}

// Generate records the prompt and returns the configured response.
func (f *FakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	n := len(f.prompts)
	f.mu.Unlock()

	if f.Err != nil {
		return "", f.Err
	}
	if f.Response != "" {
		return f.Response, nil
	}
	return fmt.Sprintf("answer #%d", n), nil
}

// Prompts returns every prompt passed to Generate, in order.
func (f *FakeGenerator) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	prompts := make([]string, len(f.prompts))
	copy(prompts, f.prompts)
	return prompts
}

// LastPrompt returns the most recent prompt, or "" if none were made.
func (f *FakeGenerator) LastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}
