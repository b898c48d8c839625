package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// 调用聊天后端时凭证的传递方式
const (
	CredentialHeader = "header"
	CredentialBody   = "body"
)

// DefaultScopes 未设置 OAUTH_SCOPES 时向 Google 申请的权限
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/calendar.events",
	"openid",
	"email",
	"profile",
}

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	OAuth   OAuthConfig
	Backend BackendConfig
	Session SessionConfig
	Log     LogConfig
}

// Load 从环境变量加载配置。缺少 Google 凭证时直接失败。
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	addr, err := listenAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr
	cfg.OAuth.Scopes = trimCSV(cfg.OAuth.Scopes)
	if len(cfg.OAuth.Scopes) == 0 {
		cfg.OAuth.Scopes = append([]string(nil), DefaultScopes...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验 env 标签无法表达的约束
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OAuth.ClientID) == "" || strings.TrimSpace(c.OAuth.ClientSecret) == "" {
		return errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	switch c.Backend.CredentialMode {
	case CredentialHeader, CredentialBody:
	default:
		return fmt.Errorf("invalid CHAT_CREDENTIAL_MODE value %q", c.Backend.CredentialMode)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("invalid CHAT_TIMEOUT value %s", c.Backend.Timeout)
	}
	if c.Session.PendingTTL <= 0 {
		return fmt.Errorf("invalid SESSION_PENDING_TTL value %s", c.Session.PendingTTL)
	}
	return nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"3000"`
	// Addr 由 Port 推导出的监听地址
	Addr string `env:"-"`
}

// listenAddr 解析服务器监听地址。
func listenAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "3000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":3000" 或 "127.0.0.1:3000"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// OAuthConfig 描述 Google 登录配置。
type OAuthConfig struct {
	ClientID     string   `env:"GOOGLE_CLIENT_ID,required,notEmpty"`
	ClientSecret string   `env:"GOOGLE_CLIENT_SECRET,required,notEmpty"`
	RedirectURL  string   `env:"OAUTH_REDIRECT_URL" envDefault:"http://localhost:3000/auth/callback"`
	Scopes       []string `env:"OAUTH_SCOPES" envSeparator:","`
}

// BackendConfig 描述远端聊天服务。
type BackendConfig struct {
	BaseURL        string        `env:"CHAT_BACKEND_URL" envDefault:"http://localhost:8000"`
	Timeout        time.Duration `env:"CHAT_TIMEOUT" envDefault:"30s"`
	CredentialMode string        `env:"CHAT_CREDENTIAL_MODE" envDefault:"header"`
}

// SessionConfig 描述浏览器会话。
type SessionConfig struct {
	// Secret 用于签名会话 cookie。为空时随机生成，重启后所有浏览器需重新登录
	Secret       string        `env:"SESSION_SECRET"`
	PendingTTL   time.Duration `env:"SESSION_PENDING_TTL" envDefault:"10m"`
	CookieSecure bool          `env:"COOKIE_SECURE" envDefault:"false"`
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

func trimCSV(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			result = append(result, v)
		}
	}
	return result
}
