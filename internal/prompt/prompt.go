// Package prompt holds the catalog of prompt engineering strategies and
// renders final model prompts from a strategy template, retrieved context,
// and conversation history.
//
// The catalog is fixed at startup. Strategies differ only in their system
// instruction; context, history, and question are assembled identically so
// answer quality comparisons across strategies isolate the instruction text.
package prompt

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultStrategy is used when a caller does not specify one.
const DefaultStrategy = "basic"

// ErrUnknownStrategy indicates a strategy name not present in the catalog.
var ErrUnknownStrategy = errors.New("unknown prompt strategy")

// Message is a single prior exchange turn included in a rendered prompt.
type Message struct {
	Role string // "user" or "assistant"
	Text string
}

// Strategy is one entry in the catalog. The system template contains a
// {context} slot that Render fills with the retrieved passages.
type Strategy struct {
	Name        string
	Description string
	system      string
}

// Registry is the immutable strategy catalog.
type Registry struct {
	strategies map[string]Strategy
	names      []string
}

// NewRegistry builds the full catalog.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	for _, s := range catalog {
		r.strategies[s.Name] = s
		r.names = append(r.names, s.Name)
	}
	sort.Strings(r.names)
	return r
}

// Get returns the strategy with the given name.
// The name must match exactly; there is no normalization or fallback.
func (r *Registry) Get(name string) (Strategy, error) {
	s, ok := r.strategies[name]
	if !ok {
		return Strategy{}, fmt.Errorf("%w: %q (valid: %s)",
			ErrUnknownStrategy, name, strings.Join(r.names, ", "))
	}
	return s, nil
}

// Default returns the default strategy.
func (r *Registry) Default() Strategy {
	return r.strategies[DefaultStrategy]
}

// Names returns the catalog's strategy names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// Render assembles the final prompt: the strategy's system instruction with
// retrieved passages substituted into its {context} slot, followed by the
// prior conversation (oldest first) and the current question.
func (s Strategy) Render(question string, contexts []string, history []Message) string {
	var b strings.Builder

	context := strings.Join(contexts, "\n\n")
	if context == "" {
		context = "[no relevant passages found]"
	}
	b.WriteString(strings.Replace(s.system, "{context}", context, 1))

	if len(history) > 0 {
		b.WriteString("\n\nPrevious conversation:\n")
		for _, m := range history {
			role := "User"
			if m.Role == "assistant" {
				role = "Assistant"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, m.Text)
		}
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

var catalog = []Strategy{
	{
		Name:        "basic",
		Description: "Simple, direct prompting",
		system: `You are a helpful assistant. Use the following context to answer the user's question.
If you cannot find the answer in the context, say so clearly.
You can reference previous conversation when relevant.

Context:
{context}`,
	},
	{
		Name:        "few-shot",
		Description: "Includes examples of good answers",
		system: `You are a helpful assistant. Use the following context to answer the user's question.

Here are examples of good answers:

Example 1:
Question: "What is the maximum takeoff weight?"
Context: "The aircraft has a maximum takeoff weight of 2,550 lbs as specified in Section 2.3"
Good Answer: "According to Section 2.3, the maximum takeoff weight is 2,550 lbs."

Example 2:
Question: "How do I start the engine?"
Context: [No relevant information about engine starting procedures]
Good Answer: "I cannot find information about engine starting procedures in the provided context."

Example 3:
Question: "What was the cruising speed mentioned earlier?"
Context: "Standard cruising speed is 122 knots"
Previous conversation: User asked about fuel capacity
Good Answer: "Earlier in our conversation, we discussed fuel capacity. Regarding your current question, the standard cruising speed is 122 knots according to the context."

Now answer the user's question using the context below:

Context:
{context}`,
	},
	{
		Name:        "chain-of-thought",
		Description: "Encourages step-by-step reasoning",
		system: `You are a helpful assistant. Answer questions using step-by-step reasoning.

Follow this process:
1. First, analyze what the question is asking
2. Search the context for relevant information
3. If found, explain the reasoning before giving the answer
4. If not found, clearly state what information is missing

Context:
{context}`,
	},
	{
		Name:        "anti-hallucination",
		Description: "Strict constraints to prevent hallucinations",
		system: `You are a precise technical assistant. Follow these strict rules:

CRITICAL RULES:
1. ONLY use information explicitly stated in the context below
2. NEVER infer, assume, or add information not in the context
3. If the answer is not in the context, respond with: "This information is not available in the provided documents"
4. When answering, quote the relevant section from the context
5. If the context is ambiguous or unclear, state that explicitly
6. For conversational questions referencing previous answers, check the chat history

Context:
{context}`,
	},
	{
		Name:        "tree-of-thoughts",
		Description: "Explores multiple reasoning branches and selects the best",
		system: `You are a precise assistant for aircraft manuals. Use Tree of Thoughts to solve the question:

Process:
1. Generate 3 possible reasoning paths (branches) based on the context.
2. For each path: Analyze the question, extract relevant info from context, reason step-by-step.
3. Evaluate each path: Which is most accurate and complete? Discard if it hallucinates or lacks evidence.
4. Select the best path and provide the final answer, quoting context.

If no path works, say "Information not available."

Context:
{context}`,
	},
	{
		Name:        "self-consistency",
		Description: "Compares independent reasoning chains for agreement",
		system: `You are a helpful assistant. Use Self-Consistency:

1. Generate 3 independent reasoning chains for the question using the context.
2. For each: Step-by-step analysis, only using explicit context info.
3. Compare the 3 chains: Select the most consistent answer (majority vote if numerical; most supported if textual).
4. If inconsistent or not in context, state clearly.

Context:
{context}`,
	},
	{
		Name:        "react",
		Description: "Thought, action, observation loop ending in a final answer",
		system: `You are a technical assistant. Use ReAct format: Thought -> Action -> Observation -> Final Answer.

- Thought: Reason about the question and plan next action.
- Action: e.g., "Search context for [key term]" or "Check history for reference".
- Observation: Note what you find (must be from context/history only).
- Repeat until ready, then give Final Answer.

End with "Final Answer: [response]". No hallucinations.

Context:
{context}`,
	},
	{
		Name:        "least-to-most",
		Description: "Decomposes the question into sub-questions, simple to complex",
		system: `You are an expert in aviation manuals. Use Least-to-Most prompting:

1. Break the question into smaller sub-questions, from simple to complex.
2. Answer each sub-question using only the context, building on previous answers.
3. Combine into a final comprehensive response.
4. If any sub-question can't be answered from context, stop and say so.

Example breakdown for "How to troubleshoot engine failure?":
- Sub1: What are common engine symptoms?
- Sub2: What checks to perform?
- Sub3: Repair steps.

Context:
{context}`,
	},
}
