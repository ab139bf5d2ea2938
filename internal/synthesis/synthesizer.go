// Package synthesis produces grounded answers from retrieved context via a
// language-model backend, optionally streaming fragments as they arrive.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bull/docchat/internal/prompt"
	"github.com/bull/docchat/internal/vectorstore"
)

// ErrSynthesisFailed indicates a language-model backend error or a
// malformed stream.
var ErrSynthesisFailed = errors.New("answer synthesis failed")

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn. Messages are append-only: only the most
// recently appended assistant message mutates, and only while its stream is
// live. Sources carries the retrieval results that grounded an assistant
// message.
type Message struct {
	Role    string
	Content string
	Sources []vectorstore.SearchResult
	At      time.Time
}

// Options configures generation.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// TokenStream is an incremental fragment sequence from the backend.
// Concatenating fragments in arrival order reconstructs the full response.
type TokenStream interface {
	// Recv returns the next fragment. done reports the terminal signal; a
	// non-nil err means the stream broke before completing.
	Recv() (fragment string, done bool, err error)
	Close() error
}

// ChatClient is the language-model backend port.
type ChatClient interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
	Stream(ctx context.Context, messages []Message, opts Options) (TokenStream, error)
}

// Synthesizer assembles the grounded prompt and drives the backend.
type Synthesizer struct {
	client ChatClient
	opts   Options
}

// New creates a synthesizer with fixed generation options.
func New(client ChatClient, opts Options) *Synthesizer {
	return &Synthesizer{client: client, opts: opts}
}

// buildMessages assembles system instruction, prior turns and the question.
func (s *Synthesizer) buildMessages(question string, history []Message, results []vectorstore.SearchResult) []Message {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{
		Role:    RoleSystem,
		Content: prompt.SystemInstruction(prompt.BuildContext(results)),
	})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: RoleUser, Content: question})
	return messages
}

// Answer produces a complete assistant message in one call.
func (s *Synthesizer) Answer(ctx context.Context, question string, history []Message, results []vectorstore.SearchResult) (Message, error) {
	content, err := s.client.Complete(ctx, s.buildMessages(question, history, results), s.opts)
	if err != nil {
		if errors.Is(err, ErrSynthesisFailed) {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}

	return Message{
		Role:    RoleAssistant,
		Content: content,
		Sources: results,
		At:      time.Now(),
	}, nil
}

// AnswerStream starts a streamed answer. Fragments are delivered on the
// returned answer's channel; the final message and any stream error are
// available once the channel closes.
func (s *Synthesizer) AnswerStream(ctx context.Context, question string, history []Message, results []vectorstore.SearchResult) (*StreamingAnswer, error) {
	stream, err := s.client.Stream(ctx, s.buildMessages(question, history, results), s.opts)
	if err != nil {
		if errors.Is(err, ErrSynthesisFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}

	answer := &StreamingAnswer{
		fragments: make(chan string),
		sources:   results,
	}
	go answer.consume(ctx, stream)
	return answer, nil
}

// StreamingAnswer accumulates one in-progress assistant message. The
// message mutates only while the stream is live and freezes when the
// fragment channel closes. Cancelling the context stops consumption and
// keeps whatever was already received; no text is retracted.
type StreamingAnswer struct {
	fragments chan string
	sources   []vectorstore.SearchResult

	mu      sync.Mutex
	content strings.Builder
	err     error
	at      time.Time
}

// Fragments returns the channel of incremental text fragments. It closes
// when the stream completes, fails, or the context is cancelled.
func (a *StreamingAnswer) Fragments() <-chan string { return a.fragments }

// Message returns the assistant message accumulated so far. After the
// fragment channel has closed the message is final and immutable, including
// its timestamp.
func (a *StreamingAnswer) Message() Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	at := a.at
	if at.IsZero() {
		at = time.Now()
	}
	return Message{
		Role:    RoleAssistant,
		Content: a.content.String(),
		Sources: a.sources,
		At:      at,
	}
}

// Err reports why the stream ended early: a wrapped ErrSynthesisFailed for
// backend failures, the context error for cancellation, nil for normal
// completion.
func (a *StreamingAnswer) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *StreamingAnswer) setErr(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
}

// consume drains the token stream into the accumulator and the fragment
// channel until completion, failure, or cancellation.
func (a *StreamingAnswer) consume(ctx context.Context, stream TokenStream) {
	defer close(a.fragments)
	defer stream.Close()
	// Runs before the channel closes, so readers that drained it always see
	// the frozen timestamp.
	defer func() {
		a.mu.Lock()
		a.at = time.Now()
		a.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			a.setErr(ctx.Err())
			return
		default:
		}

		fragment, done, err := stream.Recv()
		if err != nil {
			a.setErr(fmt.Errorf("%w: %v", ErrSynthesisFailed, err))
			return
		}

		if fragment != "" {
			// Accumulate before delivery so cancellation mid-send still
			// leaves the partial message intact.
			a.mu.Lock()
			a.content.WriteString(fragment)
			a.mu.Unlock()

			select {
			case a.fragments <- fragment:
			case <-ctx.Done():
				a.setErr(ctx.Err())
				return
			}
		}

		if done {
			return
		}
	}
}
