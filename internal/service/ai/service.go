package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/maxai/client/internal/model/chat"
)

// ErrEmptyAnswer is returned when the model produced no message.
var ErrEmptyAnswer = errors.New("chat model returned no message")

// Service runs chat requests through a compiled eino chain backed by the
// remote chat service: prompt -> backend model -> answer.
type Service struct {
	chain  compose.Runnable[chat.Request, chat.Response]
	logger *zap.Logger
}

// NewService compiles the chain around backend.
func NewService(ctx context.Context, backend Backend, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	chain := compose.NewChain[chat.Request, chat.Response]()
	chain.
		AppendLambda(compose.InvokableLambda(buildPrompt), compose.WithNodeName("prompt")).
		AppendChatModel(NewBackendModel(backend), compose.WithNodeName("backend")).
		AppendLambda(compose.InvokableLambda(readAnswer), compose.WithNodeName("answer"))

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chain: runnable, logger: logger.Named("ai")}, nil
}

// Chat sends req.Message with req.AccessToken and returns the answer text.
// The first node error is returned as raised so callers can classify it.
func (s *Service) Chat(ctx context.Context, req chat.Request) (chat.Response, error) {
	trace := &sendTrace{logger: s.logger}
	resp, err := s.chain.Invoke(ctx, req,
		compose.WithChatModelOption(WithAccessToken(req.AccessToken)),
		compose.WithCallbacks(trace.handler()),
	)
	if err != nil {
		if trace.err != nil {
			return chat.Response{}, trace.err
		}
		return chat.Response{}, fmt.Errorf("failed to run chat chain: %w", err)
	}
	return resp, nil
}

func buildPrompt(_ context.Context, req chat.Request) ([]*schema.Message, error) {
	text := chat.NormalizeMessage(req.Message)
	if text == "" {
		return nil, ErrNoUserMessage
	}
	return []*schema.Message{schema.UserMessage(text)}, nil
}

func readAnswer(_ context.Context, msg *schema.Message) (chat.Response, error) {
	if msg == nil {
		return chat.Response{}, ErrEmptyAnswer
	}
	return chat.Response{Response: msg.Content}, nil
}

type startedAtKey struct{}

// sendTrace observes one chain run. It times the backend call and keeps the
// first node error, before the chain wraps it.
type sendTrace struct {
	logger *zap.Logger
	err    error
}

func (t *sendTrace) handler() callbacks.Handler {
	return callbacks.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *callbacks.RunInfo, _ callbacks.CallbackInput) context.Context {
			if !isBackend(info) {
				return ctx
			}
			return context.WithValue(ctx, startedAtKey{}, time.Now())
		}).
		OnEndFn(func(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
			if !isBackend(info) {
				return ctx
			}
			fields := []zap.Field{zap.Duration("duration", elapsed(ctx))}
			if out := model.ConvCallbackOutput(output); out != nil && out.Message != nil {
				fields = append(fields, zap.Int("length", len(out.Message.Content)))
			}
			t.logger.Debug("backend answered", fields...)
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			if t.err == nil {
				t.err = err
			}
			if isBackend(info) {
				t.logger.Warn("backend call failed", zap.Duration("duration", elapsed(ctx)), zap.Error(err))
			}
			return ctx
		}).
		Build()
}

func isBackend(info *callbacks.RunInfo) bool {
	return info != nil && info.Component == components.ComponentOfChatModel
}

func elapsed(ctx context.Context) time.Duration {
	started, ok := ctx.Value(startedAtKey{}).(time.Time)
	if !ok {
		return 0
	}
	return time.Since(started)
}
