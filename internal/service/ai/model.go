package ai

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/maxai/client/internal/model/chat"
)

// ErrNoUserMessage is returned when the input holds nothing to send.
var ErrNoUserMessage = errors.New("no user message in input")

// Backend is the remote chat service.
type Backend interface {
	Chat(ctx context.Context, req chat.Request) (chat.Response, error)
}

type options struct {
	AccessToken string
}

// WithAccessToken attaches the delegated credential to one generation.
func WithAccessToken(token string) model.Option {
	return model.WrapImplSpecificOptFn(func(o *options) {
		o.AccessToken = token
	})
}

// BackendModel presents the remote backend as an eino chat model. Only the
// last user message is forwarded; the backend keeps no history for us.
type BackendModel struct {
	backend Backend
}

// NewBackendModel wraps backend.
func NewBackendModel(backend Backend) *BackendModel {
	return &BackendModel{backend: backend}
}

// Generate forwards the latest user message and returns the answer as an
// assistant message.
func (m *BackendModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	o := model.GetImplSpecificOptions(&options{}, opts...)

	text, ok := lastUserMessage(input)
	if !ok {
		return nil, ErrNoUserMessage
	}

	resp, err := m.backend.Chat(ctx, chat.Request{Message: text, AccessToken: o.AccessToken})
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(resp.Response, nil), nil
}

// Stream yields the whole answer as a single chunk; the backend does not stream.
func (m *BackendModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// BindTools is a no-op; the backend decides on its own tools.
func (m *BackendModel) BindTools([]*schema.ToolInfo) error {
	return nil
}

func lastUserMessage(input []*schema.Message) (string, bool) {
	for i := len(input) - 1; i >= 0; i-- {
		if msg := input[i]; msg != nil && msg.Role == schema.User && msg.Content != "" {
			return msg.Content, true
		}
	}
	return "", false
}
