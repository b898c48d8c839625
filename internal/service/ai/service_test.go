package ai

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zhouzirui/maxai/client/internal/model/chat"
)

type stubBackend struct {
	got chat.Request
	err error
}

func (s *stubBackend) Chat(_ context.Context, req chat.Request) (chat.Response, error) {
	s.got = req
	if s.err != nil {
		return chat.Response{}, s.err
	}
	return chat.Response{Response: "echo: " + req.Message}, nil
}

func TestServiceForwardsMessageAndToken(t *testing.T) {
	backend := &stubBackend{}
	svc, err := NewService(context.Background(), backend, nil)
	require.NoError(t, err)

	resp, err := svc.Chat(context.Background(), chat.Request{Message: "hello", AccessToken: "tok_abc"})
	require.NoError(t, err)

	assert.Equal(t, "echo: hello", resp.Response)
	assert.Equal(t, chat.Request{Message: "hello", AccessToken: "tok_abc"}, backend.got)
}

func TestServiceReturnsBackendError(t *testing.T) {
	sentinel := errors.New("backend down")
	svc, err := NewService(context.Background(), &stubBackend{err: sentinel}, nil)
	require.NoError(t, err)

	_, err = svc.Chat(context.Background(), chat.Request{Message: "hello", AccessToken: "tok"})
	assert.ErrorIs(t, err, sentinel)
}

func TestServiceTrimsMessageBeforeBackend(t *testing.T) {
	backend := &stubBackend{}
	svc, err := NewService(context.Background(), backend, nil)
	require.NoError(t, err)

	_, err = svc.Chat(context.Background(), chat.Request{Message: "  hello \n", AccessToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "hello", backend.got.Message)
}

func TestServiceRejectsBlankMessage(t *testing.T) {
	backend := &stubBackend{}
	svc, err := NewService(context.Background(), backend, nil)
	require.NoError(t, err)

	_, err = svc.Chat(context.Background(), chat.Request{Message: "   ", AccessToken: "tok"})
	assert.ErrorIs(t, err, ErrNoUserMessage)
	assert.Empty(t, backend.got.Message)
}

func TestServiceLogsBackendTiming(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	svc, err := NewService(context.Background(), &stubBackend{}, zap.New(core))
	require.NoError(t, err)
	_, err = svc.Chat(context.Background(), chat.Request{Message: "hi", AccessToken: "tok"})
	require.NoError(t, err)

	answered := logs.FilterMessage("backend answered").All()
	require.Len(t, answered, 1)
	assert.Contains(t, answered[0].ContextMap(), "duration")
	assert.EqualValues(t, len("echo: hi"), answered[0].ContextMap()["length"])
}

func TestServiceLogsBackendFailure(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sentinel := errors.New("backend down")

	svc, err := NewService(context.Background(), &stubBackend{err: sentinel}, zap.New(core))
	require.NoError(t, err)
	_, err = svc.Chat(context.Background(), chat.Request{Message: "hi", AccessToken: "tok"})
	assert.ErrorIs(t, err, sentinel)

	failed := logs.FilterMessage("backend call failed").All()
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].ContextMap(), "duration")
	assert.Zero(t, logs.FilterMessage("backend answered").Len())
}

func TestBackendModelUsesLastUserMessage(t *testing.T) {
	backend := &stubBackend{}
	m := NewBackendModel(backend)

	msg, err := m.Generate(context.Background(), []*schema.Message{
		schema.UserMessage("first"),
		schema.AssistantMessage("reply", nil),
		schema.UserMessage("second"),
	}, WithAccessToken("tok"))
	require.NoError(t, err)

	assert.Equal(t, schema.Assistant, msg.Role)
	assert.Equal(t, "echo: second", msg.Content)
	assert.Equal(t, "tok", backend.got.AccessToken)
}

func TestBackendModelRejectsEmptyInput(t *testing.T) {
	_, err := NewBackendModel(&stubBackend{}).Generate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoUserMessage)
}

func TestBackendModelStreamsSingleChunk(t *testing.T) {
	stream, err := NewBackendModel(&stubBackend{}).Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	defer stream.Close()

	chunk, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", chunk.Content)

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}
