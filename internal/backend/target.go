// Package backend implements the executable inference targets
package backend

import (
	"context"
	"strings"

	"github.com/fuaadabdullah/inference-gateway/pkg/types"
)

// Target is any executable inference endpoint exposing a uniform generate
// operation: the local fallback model or the remote inference proxy.
type Target interface {
	// Label identifies the target in metrics and logs.
	Label() string

	// Generate executes the request and returns a chat-completion
	// response. The tier is advisory; the local runtime ignores it while
	// the remote proxy uses it to pick a concrete model.
	Generate(ctx context.Context, req *types.ChatCompletionRequest, tier types.ComplexityTier) (*types.ChatCompletionResponse, error)
}

// FlattenMessages translates a chat-style message list into a native
// single-prompt form: any system turn is extracted separately and the user
// turns are concatenated in order.
func FlattenMessages(messages []types.Message) (system string, prompt string) {
	var parts []string
	for _, m := range messages {
		switch m.Role {
		case "system":
			if system == "" {
				system = m.Content
			}
		case "user":
			parts = append(parts, m.Content)
		}
	}
	return system, strings.Join(parts, "\n")
}
