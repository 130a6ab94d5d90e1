package merge

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Compile-time interface check
var _ Merger = (*OpenAI)(nil)

const systemPrompt = "You merge near-duplicate style examples. Combine the given texts " +
	"into a single concise text that preserves their shared tone, vocabulary, and " +
	"sentence structure. Respond with the merged text only, no commentary."

// ChatService defines the interface for making chat completion API calls.
// This abstraction enables testing without calling the real OpenAI API.
type ChatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAI implements the merge capability using OpenAI chat completions.
type OpenAI struct {
	chat  ChatService
	model openai.ChatModel
}

// NewOpenAI creates a new OpenAI merge service.
func NewOpenAI(apiKey, model string) *OpenAI {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAI{
		chat:  client.Chat.Completions,
		model: openai.ChatModel(model),
	}
}

// Merge fuses the given texts into one representative text.
func (o *OpenAI) Merge(ctx context.Context, contents []string) (string, error) {
	if len(contents) == 0 {
		return "", fmt.Errorf("merge failed: no contents given")
	}

	var sb strings.Builder
	for i, content := range contents {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, content)
	}

	resp, err := o.chat.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(sb.String()),
		}),
		Model: openai.F(o.model),
	})
	if err != nil {
		return "", fmt.Errorf("merge failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("merge failed: no choices returned")
	}

	result := strings.TrimSpace(resp.Choices[0].Message.Content)
	if n := utf8.RuneCountInString(result); n < MinResultLength {
		return "", fmt.Errorf("merge failed: result too short (%d chars)", n)
	}

	return result, nil
}
