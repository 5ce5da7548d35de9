package utils

import (
	"github.com/fuaadabdullah/inference-gateway/pkg/types"
)

// charsPerToken is the rough character-to-token ratio used when the model
// runtime does not report usage itself.
const charsPerToken = 4

// EstimateTokens approximates the token count of a piece of text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / charsPerToken
	if n == 0 {
		n = 1
	}
	return n
}

// EstimateUsage synthesizes a usage block from prompt and completion text.
func EstimateUsage(prompt, completion string) types.Usage {
	p := EstimateTokens(prompt)
	c := EstimateTokens(completion)
	return types.Usage{
		PromptTokens:     p,
		CompletionTokens: c,
		TotalTokens:      p + c,
	}
}

// EstimateMessagesTokens approximates the token count of a whole message list.
func EstimateMessagesTokens(messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}
