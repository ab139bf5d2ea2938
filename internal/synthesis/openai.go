package synthesis

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"
)

// DefaultChatModel is the completion model used unless configured.
const DefaultChatModel = "gpt-4o-mini"

// OpenAIChat implements ChatClient against the OpenAI chat completions API.
type OpenAIChat struct {
	client *openai.Client
	model  string
}

// NewOpenAIChat creates the backend client. It reads OPENAI_API_KEY from
// the environment and fails fast if it is not set.
func NewOpenAIChat(model string) (*OpenAIChat, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY environment variable not set", ErrSynthesisFailed)
	}
	if model == "" {
		model = DefaultChatModel
	}

	client := openai.NewClient()
	return &OpenAIChat{client: &client, model: model}, nil
}

// params converts conversation messages to the API request form.
func (c *OpenAIChat) params(messages []Message, opts Options) openai.ChatCompletionNewParams {
	apiMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			apiMessages = append(apiMessages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			apiMessages = append(apiMessages, openai.AssistantMessage(m.Content))
		default:
			apiMessages = append(apiMessages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages: apiMessages,
		Model:    c.model,
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	return params
}

// Complete requests a full, non-streamed completion.
func (c *OpenAIChat) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(messages, opts))
	if err != nil {
		return "", wrapChatError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrSynthesisFailed)
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream starts a streamed completion.
func (c *OpenAIChat) Stream(ctx context.Context, messages []Message, opts Options) (TokenStream, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(messages, opts))
	return &openaiTokenStream{stream: stream}, nil
}

// openaiTokenStream adapts the SDK's SSE stream to TokenStream.
type openaiTokenStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
}

func (s *openaiTokenStream) Recv() (string, bool, error) {
	if s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) > 0 {
			return chunk.Choices[0].Delta.Content, false, nil
		}
		return "", false, nil
	}
	if err := s.stream.Err(); err != nil {
		return "", true, wrapChatError(err)
	}
	return "", true, nil
}

func (s *openaiTokenStream) Close() error { return s.stream.Close() }

// wrapChatError keeps the service-reported status and detail on the error.
func wrapChatError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: openai status %d: %s", ErrSynthesisFailed, apiErr.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
}
