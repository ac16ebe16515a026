// Package llm provides the answer generation capability.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when the provider responds without any choice.
var ErrEmptyResponse = errors.New("generation returned no choices")

// DefaultInstruction is the system instruction given with every question.
const DefaultInstruction = `You are a helpful study assistant. Your task is to:
1. Answer the user's question clearly and comprehensively
2. Base your answer strictly on the provided context
3. Explain concepts thoroughly for learning purposes
4. Be accurate and avoid making up information
5. If the context doesn't contain information to answer the question, say so clearly

Always cite the documents and pages you use.`

// Request is one grounded question.
type Request struct {
	Instruction string
	Context     string
	Question    string
}

// Response is the generated answer.
type Response struct {
	Answer           string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Generator produces an answer for a grounded request.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// UserPrompt renders the user message carrying the context block and the question.
func UserPrompt(req Request) string {
	return fmt.Sprintf("Context from documents:\n%s\n\nQuestion: %s\n\n"+
		"Please provide a comprehensive answer with explanations. Cite which documents and pages you're using.",
		req.Context, req.Question)
}
