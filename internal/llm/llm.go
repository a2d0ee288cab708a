// Package llm abstracts the generative-solving collaborator behind a
// small Provider interface so solving strategies never see transport
// details.
package llm

import "context"

// Provider sends a prompt to a generative model and returns its raw text
// reply. Implementations own authentication, rate limiting, and transport
// errors; callers own the context deadline.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}
