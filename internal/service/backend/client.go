// Package backend talks to the remote chat service over HTTP.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/maxai/client/internal/config"
	"github.com/zhouzirui/maxai/client/internal/model/chat"
)

// ChatPath is the backend route every message is posted to.
const ChatPath = "/api/chat"

var (
	ErrStatus = errors.New("unexpected backend status")
	ErrDecode = errors.New("malformed backend response")
)

// Config describes the remote backend.
type Config struct {
	BaseURL        string
	CredentialMode string
	HTTPClient     *http.Client
}

// Client posts chat requests to the backend.
type Client struct {
	endpoint string
	mode     string
	http     *http.Client
	logger   *zap.Logger
}

// NewClient validates cfg and returns a client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", cfg.BaseURL)
	}

	mode := cfg.CredentialMode
	switch mode {
	case "":
		mode = config.CredentialHeader
	case config.CredentialHeader, config.CredentialBody:
	default:
		return nil, fmt.Errorf("invalid credential mode %q", cfg.CredentialMode)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		endpoint: base.JoinPath(ChatPath).String(),
		mode:     mode,
		http:     httpClient,
		logger:   logger.Named("backend"),
	}, nil
}

// Chat sends one request and returns the decoded answer. The caller's
// context bounds the whole exchange.
func (c *Client) Chat(ctx context.Context, req chat.Request) (chat.Response, error) {
	payload := chat.Request{Message: req.Message}
	if c.mode == config.CredentialBody {
		payload.AccessToken = req.AccessToken
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return chat.Response{}, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return chat.Response{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.mode == config.CredentialHeader {
		httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return chat.Response{}, fmt.Errorf("post chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("backend rejected chat request",
			zap.Int("status", resp.StatusCode),
			zap.String("body", strings.TrimSpace(string(snippet))),
		)
		return chat.Response{}, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	var decoded struct {
		Response *string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return chat.Response{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if decoded.Response == nil {
		return chat.Response{}, fmt.Errorf("%w: missing response field", ErrDecode)
	}

	return chat.Response{Response: *decoded.Response}, nil
}
