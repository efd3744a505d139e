package main

import (
	"context"

	"github.com/roo-code/conversation-memory/pkg/memmodel"
)

// cannedLLM is a deterministic, offline stand-in for memmodel.LlmProvider:
// it always returns the same pre-authored JSON body, the way
// engine_test.go's fakeLLM does for unit tests. No hosted LLM client is in
// scope (see spec Non-goals) — an operator who wants to seed facts without
// a live model passes --facts-json and the extraction step "answers" with
// that file's contents instead of calling out to anything.
type cannedLLM struct {
	body string
}

func newCannedLLM(body string) *cannedLLM {
	return &cannedLLM{body: body}
}

func (c *cannedLLM) GenerateJSON(ctx context.Context, prompt string, opts memmodel.GenOptions) (string, error) {
	return c.body, nil
}

func (c *cannedLLM) GenerateText(ctx context.Context, prompt string, opts memmodel.GenOptions) (string, error) {
	return "", memmodel.ErrUnsupported
}
