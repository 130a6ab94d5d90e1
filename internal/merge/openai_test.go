package merge

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockChatService implements ChatService for testing
type mockChatService struct {
	response  *openai.ChatCompletion
	err       error
	callCount int
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	m.callCount++
	return m.response, m.err
}

func completionWith(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestMerge_ReturnsTrimmedResult(t *testing.T) {
	mock := &mockChatService{response: completionWith("  merged exemplar text  ")}
	merger := &OpenAI{chat: mock, model: openai.ChatModelGPT4oMini}

	result, err := merger.Merge(context.Background(), []string{"I love this!", "I really love this!!"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "merged exemplar text" {
		t.Errorf("expected trimmed result, got %q", result)
	}
}

func TestMerge_EmptyContents(t *testing.T) {
	mock := &mockChatService{}
	merger := &OpenAI{chat: mock, model: openai.ChatModelGPT4oMini}

	if _, err := merger.Merge(context.Background(), nil); err == nil {
		t.Error("expected error for empty contents")
	}
	if mock.callCount != 0 {
		t.Errorf("expected no API call, got %d", mock.callCount)
	}
}

func TestMerge_TooShortResultIsError(t *testing.T) {
	// Anything below the storable minimum must be rejected, including
	// plausible-looking short answers.
	for _, content := range []string{"ok", "merged!!!"} {
		mock := &mockChatService{response: completionWith(content)}
		merger := &OpenAI{chat: mock, model: openai.ChatModelGPT4oMini}

		if _, err := merger.Merge(context.Background(), []string{"first text", "second text"}); err == nil {
			t.Errorf("expected error for %q below minimum length", content)
		}
	}
}

func TestMerge_MinLengthCountsCharacters(t *testing.T) {
	// 10 characters, 30 bytes: clears the floor.
	mock := &mockChatService{response: completionWith("今天天气真的很不错呀")}
	merger := &OpenAI{chat: mock, model: openai.ChatModelGPT4oMini}

	result, err := merger.Merge(context.Background(), []string{"今天天气不错", "今天天气真好"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "今天天气真的很不错呀" {
		t.Errorf("unexpected result %q", result)
	}
}

func TestMerge_NoChoices(t *testing.T) {
	mock := &mockChatService{response: &openai.ChatCompletion{}}
	merger := &OpenAI{chat: mock, model: openai.ChatModelGPT4oMini}

	if _, err := merger.Merge(context.Background(), []string{"first text", "second text"}); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestMerge_PropagatesServiceError(t *testing.T) {
	mock := &mockChatService{err: errors.New("model overloaded")}
	merger := &OpenAI{chat: mock, model: openai.ChatModelGPT4oMini}

	if _, err := merger.Merge(context.Background(), []string{"first text", "second text"}); err == nil {
		t.Error("expected error to propagate")
	}
}
