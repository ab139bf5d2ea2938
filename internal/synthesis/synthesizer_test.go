package synthesis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docchat/internal/prompt"
	"github.com/bull/docchat/internal/vectorstore"
)

// scriptStream replays fragments, optionally failing partway through.
type scriptStream struct {
	fragments []string
	failAfter int // fail after this many fragments; -1 disables
	pos       int
	closed    bool
}

func (s *scriptStream) Recv() (string, bool, error) {
	if s.failAfter >= 0 && s.pos == s.failAfter {
		return "", true, errors.New("connection reset")
	}
	if s.pos >= len(s.fragments) {
		return "", true, nil
	}
	fragment := s.fragments[s.pos]
	s.pos++
	return fragment, false, nil
}

func (s *scriptStream) Close() error {
	s.closed = true
	return nil
}

// fakeChat records the messages it was given and serves a scripted stream.
type fakeChat struct {
	stream      *scriptStream
	completeOut string
	completeErr error
	gotMessages []Message
}

func (f *fakeChat) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	f.gotMessages = messages
	return f.completeOut, f.completeErr
}

func (f *fakeChat) Stream(ctx context.Context, messages []Message, opts Options) (TokenStream, error) {
	f.gotMessages = messages
	return f.stream, nil
}

func TestAnswerStream_FragmentsAccumulate(t *testing.T) {
	chat := &fakeChat{stream: &scriptStream{
		fragments: []string{"The ", "answer ", "is 42."},
		failAfter: -1,
	}}
	s := New(chat, Options{})

	sources := []vectorstore.SearchResult{{DocumentName: "hitchhiker.txt", Content: "42", Similarity: 0.9}}
	answer, err := s.AnswerStream(context.Background(), "what is the answer?", nil, sources)
	require.NoError(t, err)

	var received []string
	for fragment := range answer.Fragments() {
		received = append(received, fragment)
	}

	assert.Equal(t, []string{"The ", "answer ", "is 42."}, received)
	require.NoError(t, answer.Err())

	msg := answer.Message()
	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, "The answer is 42.", msg.Content)
	assert.Equal(t, sources, msg.Sources)
	assert.False(t, msg.At.IsZero())
	assert.True(t, chat.stream.closed, "token stream should be closed")

	// The finished message is frozen; repeated reads agree on the timestamp.
	assert.Equal(t, msg.At, answer.Message().At)
}

func TestAnswerStream_BackendFailureMidStream(t *testing.T) {
	chat := &fakeChat{stream: &scriptStream{
		fragments: []string{"partial ", "text "},
		failAfter: 2,
	}}
	s := New(chat, Options{})

	answer, err := s.AnswerStream(context.Background(), "q", nil, nil)
	require.NoError(t, err)

	for range answer.Fragments() {
	}

	assert.ErrorIs(t, answer.Err(), ErrSynthesisFailed)
	// The partial message survives the failure.
	assert.Equal(t, "partial text ", answer.Message().Content)
}

// TestAnswerStream_CancellationKeepsPartial verifies cancellation stops
// consumption without retracting received text.
func TestAnswerStream_CancellationKeepsPartial(t *testing.T) {
	chat := &fakeChat{stream: &scriptStream{
		fragments: []string{"one ", "two ", "three ", "four "},
		failAfter: -1,
	}}
	s := New(chat, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	answer, err := s.AnswerStream(ctx, "q", nil, nil)
	require.NoError(t, err)

	first := <-answer.Fragments()
	assert.Equal(t, "one ", first)
	cancel()

	// Drain whatever is left until the channel closes.
	deadline := time.After(time.Second)
	for open := true; open; {
		select {
		case _, open = <-answer.Fragments():
		case <-deadline:
			t.Fatal("fragment channel did not close after cancellation")
		}
	}

	assert.ErrorIs(t, answer.Err(), context.Canceled)
	assert.Contains(t, answer.Message().Content, "one ")
	assert.True(t, chat.stream.closed)
}

func TestAnswer_NonStreaming(t *testing.T) {
	chat := &fakeChat{completeOut: "Grounded reply."}
	s := New(chat, Options{Temperature: 0.2})

	results := []vectorstore.SearchResult{{DocumentName: "doc.md", Content: "context", Similarity: 0.8}}
	msg, err := s.Answer(context.Background(), "question?", nil, results)
	require.NoError(t, err)

	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, "Grounded reply.", msg.Content)
	assert.Equal(t, results, msg.Sources)
	assert.False(t, msg.At.IsZero())
}

func TestAnswer_BackendError(t *testing.T) {
	chat := &fakeChat{completeErr: errors.New("rate limited")}
	s := New(chat, Options{})

	_, err := s.Answer(context.Background(), "q", nil, nil)
	assert.ErrorIs(t, err, ErrSynthesisFailed)
}

// TestBuildMessages_Shape verifies system instruction, history and the new
// question are assembled in order, with the sentinel when nothing was
// retrieved.
func TestBuildMessages_Shape(t *testing.T) {
	chat := &fakeChat{completeOut: "ok"}
	s := New(chat, Options{})

	history := []Message{
		{Role: RoleUser, Content: "earlier question"},
		{Role: RoleAssistant, Content: "earlier answer"},
	}
	_, err := s.Answer(context.Background(), "new question", history, nil)
	require.NoError(t, err)

	require.Len(t, chat.gotMessages, 4)
	assert.Equal(t, RoleSystem, chat.gotMessages[0].Role)
	assert.Contains(t, chat.gotMessages[0].Content, prompt.NoContextSentinel)
	assert.Equal(t, "earlier question", chat.gotMessages[1].Content)
	assert.Equal(t, "earlier answer", chat.gotMessages[2].Content)
	assert.Equal(t, RoleUser, chat.gotMessages[3].Role)
	assert.Equal(t, "new question", chat.gotMessages[3].Content)
}
